//	@title			Retail Catalog API
//	@version		1.0
//	@description	Back office API for the retail catalog: products and their ImageKit images.
//
//	@host		localhost:8080
//	@BasePath	/api
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/retailstore/service/internal/auth"
	"github.com/retailstore/service/internal/config"
	"github.com/retailstore/service/internal/db"
	"github.com/retailstore/service/internal/media"
	appMiddleware "github.com/retailstore/service/internal/middleware"
	"github.com/retailstore/service/internal/product"
	"github.com/retailstore/service/internal/storage"

	_ "github.com/retailstore/service/docs/swagger"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load(log)
	if err != nil {
		log.WithError(err).Fatal("configuration failed")
	}
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if !cfg.ImageKitConfigured() {
		log.Warn("ImageKit keys are not set; image endpoints will answer 500")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics, err := appMiddleware.NewHTTPMetrics(reg)
	if err != nil {
		log.WithError(err).Fatal("http metrics registration failed")
	}
	storeMetrics, err := storage.NewPrometheusObserver("catalog", reg)
	if err != nil {
		log.WithError(err).Fatal("storage metrics registration failed")
	}

	// Wire dependencies: repository → service → handler
	store := storage.NewImageKitStorage(cfg.ImageKitPrivateKey,
		storage.WithAPIBase(cfg.ImageKitAPIBase),
		storage.WithHTTPClient(&http.Client{Timeout: cfg.ImageKitTimeout}),
		storage.WithObserver(storeMetrics),
	)
	signer := storage.NewSigner(cfg.ImageKitPrivateKey, cfg.ImageKitPublicKey)
	mediaHandler := media.NewHandler(signer, store, log.WithField("component", "media"))

	productRepo := product.NewRepository(pool)
	productSvc := product.NewService(productRepo, log.WithField("component", "product"))
	productHandler := product.NewHandler(productSvc)

	authSvc := auth.NewService(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, log.WithField("component", "auth"))

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(httpMetrics.Handler)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Swagger UI at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", authHandler.Login)

		r.Route("/admin", func(r chi.Router) {
			r.Use(appMiddleware.RequireRole(cfg.JWTSecret, auth.RoleAdmin))

			r.Post("/imagekit/auth", mediaHandler.IssueUploadAuth)
			r.Delete("/imagekit/file/{fileId}", mediaHandler.DeleteFile)

			r.Post("/products", productHandler.CreateProduct)
			r.Get("/products/{id}", productHandler.GetProduct)
			r.Patch("/products/{id}", productHandler.UpdateProduct)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.AppEnv}).Info("server listening")
		log.Infof("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-quit
	log.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}

	log.Info("server stopped")
}
