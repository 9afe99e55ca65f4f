// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pkgbake/pkgbake/pkg/pkgbuild"
)

// S3Backend fetches s3://bucket/key URLs from an S3-compatible endpoint.
type S3Backend struct {
	client *minio.Client
}

// NewS3Backend creates a backend for endpoint (host[:port]). Credentials
// come from the usual AWS and MinIO environment variables or the AWS
// credentials file; without any, requests are anonymous.
func NewS3Backend(endpoint, region string, secure bool) (*S3Backend, error) {
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
	})
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client for %s: %w", endpoint, err)
	}
	return &S3Backend{client: client}, nil
}

// Fetch downloads the object into partPath, resuming with a ranged GET.
func (b *S3Backend) Fetch(ctx context.Context, src pkgbuild.SourceEntry, partPath string) (int64, error) {
	bucket, key, err := splitS3URL(src.URL)
	if err != nil {
		return 0, err
	}

	out, offset, err := openPart(partPath)
	if err != nil {
		return 0, err
	}

	opts := minio.GetObjectOptions{}
	if offset > 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			_ = out.Close()
			return 0, err
		}
	}
	obj, err := b.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		_ = out.Close()
		return 0, s3Error(src.URL, err)
	}
	defer func() { _ = obj.Close() }()

	n, err := io.Copy(out, obj)
	if err != nil {
		err = s3Error(src.URL, err)
	}
	return closePart(out, offset+n, err)
}

func splitS3URL(raw string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(raw, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: s3 URL %q needs bucket and key", ErrUnsupportedProtocol, raw)
	}
	return bucket, key, nil
}

// s3Error maps S3 status codes onto HTTPStatusError so retry decisions
// match the HTTP backend.
func s3Error(url string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s: %w", resp.Code, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode})
	}
	return err
}
