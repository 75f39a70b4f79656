// Package store abstracts the destination document store. The pipeline
// treats it as an opaque file sink with a folder/upload/trash/delete
// contract; the concrete backend is Weaviate.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrPayloadTooLarge is returned by Upload when the backend rejects the
// document for size. Callers may retry in plain (non-rich) mode.
var ErrPayloadTooLarge = errors.New("store: payload too large")

// FileInfo describes one stored file within a folder.
type FileInfo struct {
	ID        string
	Name      string
	CanTrash  bool
	CanDelete bool
}

// UploadRequest carries one chunk to be stored.
type UploadRequest struct {
	Name    string
	Folder  string
	Content string
	// AsRichDocument asks the store to import the content as an
	// editable rich document rather than a plain attachment.
	AsRichDocument bool
}

// Client is the document sink consumed by the processors.
type Client interface {
	// Initialize sets up backend schema or folders as needed.
	Initialize(ctx context.Context) error

	// Upload stores a chunk and returns the stored object's id.
	Upload(ctx context.Context, req UploadRequest) (string, error)

	// List returns the non-trashed files in a folder.
	List(ctx context.Context, folder string) ([]FileInfo, error)

	// Trash moves a file to the trash.
	Trash(ctx context.Context, id string) error

	// Delete permanently removes a file.
	Delete(ctx context.Context, id string) error
}

// UploadChunk uploads a chunk, degrading to a plain upload when the
// rich-document import is rejected for payload size.
func UploadChunk(ctx context.Context, c Client, req UploadRequest, logger *slog.Logger) error {
	id, err := c.Upload(ctx, req)
	if errors.Is(err, ErrPayloadTooLarge) && req.AsRichDocument {
		logger.Warn("payload too large for rich import, retrying as plain upload",
			"name", req.Name, "folder", req.Folder)
		plain := req
		plain.AsRichDocument = false
		id, err = c.Upload(ctx, plain)
	}
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", req.Name, err)
	}

	logger.Info("uploaded chunk", "name", req.Name, "folder", req.Folder, "id", id)
	return nil
}

// ClearFolder removes every file in a folder before a fresh run writes
// replacements. Trashing is preferred over hard deletion; items that
// permit neither are reported and left in place. Failures are never
// fatal to the run.
func ClearFolder(ctx context.Context, c Client, folder string, logger *slog.Logger) {
	files, err := c.List(ctx, folder)
	if err != nil {
		logger.Error("failed to list folder for cleanup", "folder", folder, "error", err)
		return
	}
	if len(files) == 0 {
		logger.Info("no files to remove", "folder", folder)
		return
	}

	logger.Info("clearing folder", "folder", folder, "files", len(files))
	for _, f := range files {
		if f.CanTrash {
			if err := c.Trash(ctx, f.ID); err == nil {
				logger.Info("trashed file", "name", f.Name, "id", f.ID)
				continue
			} else {
				logger.Warn("failed to trash file", "name", f.Name, "id", f.ID, "error", err)
			}
		}

		if f.CanDelete {
			if err := c.Delete(ctx, f.ID); err != nil {
				logger.Error("failed to delete file", "name", f.Name, "id", f.ID, "error", err)
			} else {
				logger.Info("deleted file", "name", f.Name, "id", f.ID)
			}
			continue
		}

		logger.Warn("insufficient permissions to remove file", "name", f.Name, "id", f.ID)
	}
}
