package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-meter/storage"
)

func newGalleryCommand(a *app) *cobra.Command {
	var (
		limit      int
		thumbnails string
		size       uint
	)

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List saved results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}

			records := store.Gallery()
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if thumbnails != "" {
				if err := os.MkdirAll(thumbnails, 0o755); err != nil {
					return errors.Wrapf(err, "creating %s", thumbnails)
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tARTIFACTS\tDIR")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%d\t%s\n", rec.Timestamp, len(rec.Artifacts), rec.Dir)

				if thumbnails == "" {
					continue
				}
				dst := filepath.Join(thumbnails, rec.Timestamp+".jpg")
				if err := storage.WriteThumbnail(rec, dst, size); err != nil {
					a.logger.Warn("thumbnail failed", "record", rec.Timestamp, "error", err)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many records (0 for all)")
	cmd.Flags().StringVar(&thumbnails, "thumbnails", "", "Write a thumbnail of each listed composite into this directory")
	cmd.Flags().UintVar(&size, "thumbnail-size", 320, "Longest thumbnail edge in pixels")
	return cmd
}
