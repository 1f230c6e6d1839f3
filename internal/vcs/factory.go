package vcs

import (
	"os"
	"path/filepath"

	"github.com/oxlock/oxlock/internal/errs"
)

// New creates a guarded Backend for dir, auto-detecting which
// implementation already owns it. A directory with no control directory
// at all defaults to the native backend, since Init on a fresh path has
// nothing to detect.
func New(dir, externalBinary string) (Backend, error) {
	if hasNativeRepo(dir) {
		return NewGuarded(NewNativeVCS()), nil
	}
	if hasSubprocessRepo(dir) {
		return NewGuarded(NewSubprocessVCS(externalBinary)), nil
	}
	return NewGuarded(NewNativeVCS()), nil
}

// NewFromConfig creates a Backend of the explicit type. An empty
// backendType auto-detects via New.
func NewFromConfig(dir string, backendType BackendType, externalBinary string) (Backend, error) {
	switch backendType {
	case NativeBackend:
		return NewGuarded(NewNativeVCS()), nil
	case SubprocessBackend:
		return NewGuarded(NewSubprocessVCS(externalBinary)), nil
	default:
		return New(dir, externalBinary)
	}
}

// DetectBackendType reports which implementation already owns dir.
func DetectBackendType(dir string) (BackendType, error) {
	if hasNativeRepo(dir) {
		return NativeBackend, nil
	}
	if hasSubprocessRepo(dir) {
		return SubprocessBackend, nil
	}
	return "", errs.New(errs.NotFound, "not a repository: "+dir)
}

// hasNativeRepo checks if dir contains a NativeVCS control directory.
func hasNativeRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, controlDir))
	return err == nil && info.IsDir()
}

// hasSubprocessRepo checks if dir contains an external-CLI control
// directory. The external CLI's own control-directory name is
// implementation-defined; callers that know it may override this by
// choosing NewFromConfig(dir, SubprocessBackend, bin) directly instead of
// relying on auto-detection.
func hasSubprocessRepo(dir string) bool {
	for _, name := range []string{".oxen", ".git"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
