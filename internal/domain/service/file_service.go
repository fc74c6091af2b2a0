package service

import (
	"context"
	"io"
)

// FileStorage stores attachment bytes and returns a retrievable URL.
type FileStorage interface {
	UploadFile(ctx context.Context, objectPath, contentType string, file io.Reader) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
	Close() error
}
