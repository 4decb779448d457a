package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum of a Mat's shape and pixels.
//
// It is used to verify that rendering and cropping never write into a frame they
// only borrow.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, or "empty" for an empty Mat.
//
// Example:
//
// ```go
//
//	before := ComputeMatChecksum(frame)
//	vis, _ := visualizer.Render(result)
//	after := ComputeMatChecksum(frame) // equal to before
//
// ```
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	// Regions are not continuous; hash a compact copy.
	src := mat
	if !mat.IsContinuous() {
		src = mat.Clone()
		defer src.Close()
	}

	data, err := src.DataPtrUint8()
	if err != nil {
		return "unreadable"
	}
	hash := md5.New()
	fmt.Fprintf(hash, "%dx%dx%d:", src.Rows(), src.Cols(), src.Channels())
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}
