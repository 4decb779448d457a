package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var initMu sync.Mutex

// InitializeRuntime loads the onnxruntime shared library once per process.
//
// Subsequent calls are no-ops while the environment is live, whatever path
// they pass.
//
// Arguments:
//   - libPath: The shared library to load; see GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialise.
func InitializeRuntime(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	// Check if the shared library exists before trying to use it.
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}
