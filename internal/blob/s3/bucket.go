package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// Bucket implements domain.BlobStore against one S3 bucket. Uploads go
// through the SDK upload manager, which issues a single PutObject for small
// bodies and concurrent multipart requests for large ones, so a run archive
// of any size takes the same code path.
type Bucket struct {
	uploader *manager.Uploader
	client   *s3.Client
	name     string
}

// NewBucket creates a Bucket over the client's configured bucket.
func NewBucket(c *Client) *Bucket {
	return &Bucket{
		uploader: manager.NewUploader(c.S3()),
		client:   c.S3(),
		name:     c.Bucket(),
	}
}

// Put uploads data at the given path with the given content type.
func (b *Bucket) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// Exists reports whether an object is present at the given path.
func (b *Bucket) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
	return true, nil
}

// isNotFound matches the typed SDK errors plus the bare 404 that HeadObject
// returns on some S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	type statusCoder interface {
		HTTPStatusCode() int
	}
	var sc statusCoder
	return errors.As(err, &sc) && sc.HTTPStatusCode() == 404
}

var _ domain.BlobStore = (*Bucket)(nil)
