package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

const invoiceContentType = "application/pdf"

// Uploader writes rendered invoice documents to a Cloud Storage bucket and
// returns the path under which they are served.
type Uploader struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewUploader constructs an Uploader bound to the given bucket. baseURL, when
// set, prefixes the returned document paths (e.g. a CDN host); otherwise the
// site-relative path is returned.
func NewUploader(client *storage.Client, bucket, baseURL string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &Uploader{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

// Store writes the PDF under objectPath and returns the public document path.
func (u *Uploader) Store(ctx context.Context, objectPath string, pdf []byte) (string, error) {
	if u == nil || u.client == nil {
		return "", errors.New("storage: uploader not initialised")
	}
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", errors.New("storage: object path is required")
	}
	if len(pdf) == 0 {
		return "", errors.New("storage: document is empty")
	}

	writer := u.client.Bucket(u.bucket).Object(objectPath).NewWriter(ctx)
	writer.ContentType = invoiceContentType
	writer.CacheControl = "private, max-age=0"

	if _, err := writer.Write(pdf); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write %s: %w", objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise %s: %w", objectPath, err)
	}

	if u.baseURL != "" {
		return u.baseURL + "/" + objectPath, nil
	}
	return "/" + objectPath, nil
}
