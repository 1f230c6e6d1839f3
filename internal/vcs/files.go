package vcs

import (
	"os"
	"path/filepath"

	"github.com/oxlock/oxlock/internal/errs"
)

// ReadCommittedFile reads relPath from the repository working tree at
// repoPath. It is a plain filesystem read, independent of backend — the
// file's presence in the VCS's own history is established by the caller's
// own Add/Commit/Push sequence, not by this helper.
func ReadCommittedFile(repoPath, relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, relPath))
	if os.IsNotExist(err) {
		return nil, errs.New(errs.NotFound, relPath)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "read "+relPath, err)
	}
	return data, nil
}

// WriteCommittedFile writes data to relPath under repoPath, creating
// parent directories as needed. The caller is responsible for staging and
// committing it through the Backend afterward.
func WriteCommittedFile(repoPath, relPath string, data []byte) error {
	full := filepath.Join(repoPath, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.Wrap(errs.Filesystem, "create directory for "+relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return errs.Wrap(errs.Filesystem, "write "+relPath, err)
	}
	return nil
}

// RemoveCommittedFile deletes relPath under repoPath. The caller is
// responsible for staging and committing the deletion through the Backend
// afterward. Removing an already-absent file is not an error.
func RemoveCommittedFile(repoPath, relPath string) error {
	err := os.Remove(filepath.Join(repoPath, relPath))
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Filesystem, "remove "+relPath, err)
	}
	return nil
}
