package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func newCaptureCommand(a *app) *cobra.Command {
	var (
		deviceID int
		frames   int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Read frames from a camera and run the pipeline on each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if frames < 1 {
				return errors.Errorf("--frames must be at least 1, got %d", frames)
			}

			p, err := a.openPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			webcam, err := gocv.OpenVideoCapture(deviceID)
			if err != nil {
				return errors.Wrapf(err, "opening capture device %d", deviceID)
			}
			defer webcam.Close()

			img := gocv.NewMat()
			defer img.Close()

			a.logger.Info("capturing", "device", deviceID, "frames", frames, "interval", interval)

			ctx := cmd.Context()
			for i := 0; i < frames; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(interval):
					}
				}

				if ok := webcam.Read(&img); !ok {
					return errors.Errorf("cannot read device %d", deviceID)
				}
				if img.Empty() {
					a.logger.Warn("empty frame", "device", deviceID, "frame", i)
					continue
				}

				label := fmt.Sprintf("device-%d/frame-%d", deviceID, i)
				if err := runFrame(ctx, p, label, img, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&deviceID, "device", 0, "Video capture device id")
	cmd.Flags().IntVarP(&frames, "frames", "n", 1, "Number of frames to process")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between frames")
	return cmd
}
