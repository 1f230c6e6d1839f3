package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oxlock/oxlock/internal/errs"
	"github.com/oxlock/oxlock/internal/upload"
)

// fileChunkReader reads chunk bytes directly from the local source file
// it was built with (the --source flag), at each chunk's offset; the
// adapter is the one piece that knows where bytes actually live.
type fileChunkReader struct {
	sourcePath string
}

func (r *fileChunkReader) ReadChunk(ctx context.Context, s upload.Session, c upload.Chunk) ([]byte, error) {
	f, err := os.Open(r.sourcePath)
	if err != nil {
		return nil, errs.Wrap(errs.Filesystem, "open upload source", err)
	}
	defer f.Close()
	buf := make([]byte, c.Length)
	if _, err := f.ReadAt(buf, c.Offset); err != nil {
		return nil, errs.Wrap(errs.Filesystem, "read chunk range", err)
	}
	return buf, nil
}

// dirTransport "uploads" a chunk by writing it under a destination
// directory as one file per chunk index, standing in for a real remote
// endpoint until an adapter wires one in.
type dirTransport struct {
	destDir string
}

func (t *dirTransport) UploadChunk(ctx context.Context, s upload.Session, c upload.Chunk, data []byte) (string, error) {
	if err := os.MkdirAll(t.destDir, 0o755); err != nil {
		return "", errs.Wrap(errs.Filesystem, "create destination directory", err)
	}
	name := filepath.Join(t.destDir, fmt.Sprintf("chunk-%06d", c.Index))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return "", errs.Wrap(errs.Filesystem, "write chunk", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func newUploadCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Resumable chunked upload of a large project file",
	}
	cmd.AddCommand(newUploadRunCommand(opts))
	return cmd
}

func newUploadRunCommand(opts *globalOptions) *cobra.Command {
	var source, dest, branch string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Upload source to dest one chunk at a time, resuming any prior session",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(source)
			if err != nil {
				return errs.Wrap(errs.Filesystem, "stat upload source", err)
			}
			sessionDir := opts.cfg.Queue.Dir
			if sessionDir == "" {
				sessionDir = opts.repoPath + "/.oxlock-queue"
			}
			sessionDir = filepath.Join(sessionDir, "uploads")

			reader := &fileChunkReader{sourcePath: source}
			transport := &dirTransport{destDir: dest}
			uploader, err := upload.New(sessionDir, opts.cfg.Upload.ChunkSizeBytes, reader, transport)
			if err != nil {
				return err
			}

			session, err := uploader.GetOrCreateSession(source, dest, branch, info.Size())
			if err != nil {
				return err
			}
			if session.Status == upload.Failed {
				session, err = uploader.Resume(session)
				if err != nil {
					return err
				}
			}
			for session.Status != upload.Completed && session.Status != upload.Aborted {
				session, err = uploader.UploadNextChunk(cmd.Context(), session)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\r%.1f%% (%.0f B/s)", session.Percentage(), session.AverageBandwidth())
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if session.Status == upload.Aborted {
				return fmt.Errorf("upload session aborted")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "local file to upload (required)")
	cmd.Flags().StringVar(&dest, "dest", "", "destination directory (required)")
	cmd.Flags().StringVar(&branch, "branch", "main", "branch the upload is associated with")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("dest")
	return cmd
}
