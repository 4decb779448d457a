package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-meter/util"
)

func newDetectCommand(a *app) *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "detect <image|dir>...",
		Short: "Run the pipeline on images and save the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectImages(args)
			if err != nil {
				return err
			}

			p, err := a.openPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			var failed int
			for _, file := range files {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if err := runFile(cmd.Context(), p, file, cmd.OutOrStdout()); err != nil {
					failed++
					a.logger.Error("detection failed", "file", file.Path, "error", err)
					if !keepGoing {
						return err
					}
				}
			}
			if failed > 0 {
				return errors.Errorf("%d of %d images failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "Continue with the next image after a failure")
	return cmd
}

func collectImages(args []string) ([]util.ImageFile, error) {
	var files []util.ImageFile
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", arg)
		}
		if info.IsDir() {
			dir, err := util.LoadDirectoryImageFiles(arg)
			if err != nil {
				return nil, err
			}
			files = append(files, dir...)
			continue
		}
		file, err := util.LoadImageFile(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func runFile(ctx context.Context, p *pipeline, file util.ImageFile, out io.Writer) error {
	frame, err := gocv.IMDecode(file.Data, gocv.IMReadColor)
	if err != nil {
		return errors.Wrapf(err, "decoding %s", file.Path)
	}
	defer frame.Close()
	if frame.Empty() {
		return errors.Errorf("decoding %s: no image data", file.Path)
	}

	return runFrame(ctx, p, file.Path, frame, out)
}

func runFrame(ctx context.Context, p *pipeline, label string, frame gocv.Mat, out io.Writer) error {
	outcome, err := p.Process(ctx, frame)
	if err != nil {
		return err
	}
	defer outcome.Close()

	digits := "none"
	if d, ok := outcome.Result.Digits.Get(); ok {
		digits = fmt.Sprint(d.Batch.Len())
	}
	record := "-"
	if rec, ok := outcome.Record.Get(); ok {
		record = rec.Dir
	}

	fmt.Fprintf(out, "%s\tregion=%d\tdigits=%s\t%s\n", label, outcome.Result.Region.Batch.Len(), digits, record)
	return nil
}
