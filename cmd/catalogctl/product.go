package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retailstore/service/internal/apiclient"
	"github.com/retailstore/service/internal/asset"
	"github.com/retailstore/service/internal/product"
)

func newProductCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Read and edit products",
	}
	cmd.AddCommand(
		newProductGetCmd(opts),
		newProductCreateCmd(opts),
		newProductUpdateCmd(opts),
	)
	return cmd
}

func newProductGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print one product as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := opts.build().api.GetProduct(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func newProductCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		req   apiclient.CreateProduct
		price string
		image string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product, optionally with an image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := decimal.NewFromString(price); err != nil {
				return fmt.Errorf("invalid price %q", price)
			}
			req.Price = price

			a := opts.build()
			res, err := a.editImage(cmd.Context(), asset.ModeCreate, asset.Reference{}, image, false)
			if err != nil {
				return err
			}
			req.ImageURL, req.ImageFileID = res.Image.URL, res.Image.FileID

			p, err := a.api.CreateProduct(cmd.Context(), req)
			if err != nil {
				a.warnUnsaved(res)
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.ProductName, "name", "", "product name")
	f.StringVar(&req.Barcode, "barcode", "", "barcode")
	f.StringVar(&price, "price", "0", "unit price")
	f.StringVar(&req.Unit, "unit", "", "sales unit")
	f.StringVar(&image, "image", "", "path to an image file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("barcode")
	return cmd
}

func newProductUpdateCmd(opts *globalOptions) *cobra.Command {
	var (
		name, barcode, price, unit string
		image                      string
		removeImage                bool
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update product fields and replace or remove its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var u product.Update
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.ProductName = &name
			}
			if flags.Changed("barcode") {
				u.Barcode = &barcode
			}
			if flags.Changed("unit") {
				u.Unit = &unit
			}
			if flags.Changed("price") {
				d, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("invalid price %q", price)
				}
				u.Price = &d
			}

			a := opts.build()
			ctx := cmd.Context()
			current, err := a.api.GetProduct(ctx, id)
			if err != nil {
				return err
			}

			original := asset.FromColumns(current.ImageURL, current.ImageFileID)
			res, err := a.editImage(ctx, asset.ModeUpdate, original, image, removeImage)
			if err != nil {
				return err
			}
			u.ImageURL, u.ImageFileID = res.Image.URL, res.Image.FileID

			if u.Empty() {
				a.log.Info("nothing to update")
				return printJSON(cmd.OutOrStdout(), current)
			}
			p, err := a.api.UpdateProduct(ctx, id, u)
			if err != nil {
				a.warnUnsaved(res)
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "product name")
	f.StringVar(&barcode, "barcode", "", "barcode")
	f.StringVar(&price, "price", "", "unit price")
	f.StringVar(&unit, "unit", "", "sales unit")
	f.StringVar(&image, "image", "", "replace the image with this file")
	f.BoolVar(&removeImage, "remove-image", false, "remove the current image")
	cmd.MarkFlagsMutuallyExclusive("image", "remove-image")
	return cmd
}

// editImage runs one editing session: stage or remove, then submit. A failed
// cleanup of the replaced image is reported but does not fail the command.
func (a *app) editImage(ctx context.Context, mode asset.Mode, original asset.Reference, imagePath string, remove bool) (asset.Result, error) {
	sess, err := a.reconciler.Open(mode, original)
	if err != nil {
		return asset.Result{}, err
	}

	switch {
	case imagePath != "":
		file, err := localFile(imagePath)
		if err != nil {
			return asset.Result{}, err
		}
		if err := sess.Select(file); err != nil {
			return asset.Result{}, err
		}
	case remove:
		if err := sess.Remove(ctx); err != nil {
			sess.Cancel()
			return asset.Result{}, err
		}
	}

	res, err := sess.Submit(ctx, a.uploader)
	if err != nil {
		if dangling := sess.Cancel(); !dangling.IsZero() {
			a.log.WithField("file_id", dangling.FileID).Warn("image was deleted but the product still references it")
		}
		var upErr *asset.UploadError
		if errors.As(err, &upErr) {
			return asset.Result{}, fmt.Errorf("image upload failed, product left unchanged: %w", upErr.Err)
		}
		return asset.Result{}, err
	}

	if res.Cleanup.Failed() {
		a.log.WithFields(logrus.Fields{
			"file_id": res.Cleanup.FileID,
			"error":   res.Cleanup.Err,
		}).Warn("new image saved but the previous one could not be deleted")
	}
	return res, nil
}

// warnUnsaved reports store changes the record never picked up.
func (a *app) warnUnsaved(res asset.Result) {
	if !res.Uploaded.IsZero() {
		a.log.WithField("file_id", res.Uploaded.FileID).Warn("uploaded image is not referenced by any product")
	}
	if res.Image.Cleared() {
		a.log.Warn("image was deleted from the store but the product still references it")
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
