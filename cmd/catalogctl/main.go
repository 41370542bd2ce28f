// Command catalogctl edits catalog products from the command line. Product
// images are uploaded straight to ImageKit with credentials signed by the API,
// and the previous image is cleaned up once the new one is in place.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retailstore/service/internal/apiclient"
	"github.com/retailstore/service/internal/asset"
	"github.com/retailstore/service/internal/storage"
)

type globalOptions struct {
	apiURL    string
	token     string
	folder    string
	uploadURL string
	timeout   time.Duration
	verbose   bool
}

// app bundles what every subcommand needs once flags are parsed.
type app struct {
	api        *apiclient.Client
	reconciler *asset.Reconciler
	uploader   asset.Uploader
	log        *logrus.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "catalogctl",
		Short:        "Manage catalog products and their images",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", envOr("CATALOG_API_URL", "http://localhost:8080"), "API base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("CATALOG_TOKEN"), "admin bearer token")
	flags.StringVar(&opts.folder, "folder", envOr("IMAGEKIT_FOLDER", "/products"), "ImageKit folder for uploads")
	flags.StringVar(&opts.uploadURL, "upload-url", storage.DefaultUploadURL, "ImageKit upload endpoint")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "API request timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newLoginCmd(opts),
		newProductCmd(opts),
	)
	return root
}

func (o *globalOptions) build() *app {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if o.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	api := apiclient.New(o.apiURL, o.timeout, log)
	api.SetToken(o.token)

	up := storage.NewUploader(api, o.folder).WithUploadURL(o.uploadURL)
	return &app{
		api:        api,
		reconciler: asset.NewReconciler(api, log),
		uploader:   &fileUploader{up: up},
		log:        log,
	}
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Print an admin token; export it as CATALOG_TOKEN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := opts.build()
			token, err := a.api.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", envOr("ADMIN_USERNAME", "admin"), "admin username")
	cmd.Flags().StringVar(&password, "password", os.Getenv("ADMIN_PASSWORD"), "admin password")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
