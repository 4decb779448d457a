package storage

import (
	"image"
	"image/jpeg"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Thumbnail decodes the composite of rec and shrinks it to fit maxDim x maxDim.
//
// Arguments:
//   - rec: A gallery record.
//   - maxDim: The largest allowed width or height.
//
// Returns:
//   - image.Image: The thumbnail; the original is returned if it already fits.
//   - error: An error if the composite is missing or cannot be decoded.
func Thumbnail(rec Record, maxDim uint) (image.Image, error) {
	path, ok := rec.Path(ArtifactComposite)
	if !ok {
		return nil, errors.Errorf("record %s has no composite", rec.Timestamp)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3), nil
}

// WriteThumbnail writes the thumbnail of rec as a JPEG file at dst.
func WriteThumbnail(rec Record, dst string, maxDim uint) error {
	thumb, err := Thumbnail(rec, maxDim)
	if err != nil {
		return err
	}

	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	if err := jpeg.Encode(f, thumb, &jpeg.Options{Quality: 80}); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", dst)
	}
	return errors.Wrapf(f.Close(), "closing %s", dst)
}
