// Package media mirrors story thumbnails into object storage. Story media
// URLs from the provider expire within hours; mirroring keeps a durable copy
// so archived stories stay viewable. Mirroring is strictly best-effort: a
// failure here never blocks story archival.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"alrt/internal/config"
	"alrt/internal/types"
)

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror downloads a thumbnail from the provider CDN and writes it to an
// S3 bucket under stories/{accountID}/{storyID}.jpg.
type S3Mirror struct {
	client     S3PutClient
	httpClient *http.Client

	bucket      string
	region      string
	endpointURL string
	fetchLimit  int64
	timeout     time.Duration

	logger *slog.Logger
}

// NewS3Mirror creates an S3Mirror from the media configuration. Returns nil
// when no bucket is configured, which disables mirroring; callers treat a
// nil mirror as "archive metadata only".
func NewS3Mirror(cfg config.MediaConfig, client S3PutClient, httpClient *http.Client, logger *slog.Logger) *S3Mirror {
	if cfg.Bucket == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &S3Mirror{
		client:      client,
		httpClient:  httpClient,
		bucket:      cfg.Bucket,
		region:      cfg.Region,
		endpointURL: strings.TrimSuffix(cfg.EndpointURL, "/"),
		fetchLimit:  cfg.FetchLimit,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Mirror copies the media at mediaURL into the bucket and returns the
// durable URL. The download is size-capped; an oversized or failed download
// is an error the caller logs and moves past.
func (m *S3Mirror) Mirror(ctx context.Context, accountID, storyID, mediaURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body, contentType, err := m.download(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	key := objectKey(accountID, storyID)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to store mirrored thumbnail %s", key), err)
	}

	m.logger.DebugContext(ctx, "thumbnail mirrored",
		"account_id", accountID,
		"story_id", storyID,
		"key", key,
		"bytes", len(body),
	)
	return m.objectURL(key), nil
}

// download fetches the thumbnail, enforcing the configured size cap.
func (m *S3Mirror) download(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build thumbnail request", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to download thumbnail", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("thumbnail download returned %d", resp.StatusCode), nil)
	}

	// Read one byte past the cap to detect oversized media.
	body, err := io.ReadAll(io.LimitReader(resp.Body, m.fetchLimit+1))
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to read thumbnail body", err)
	}
	if int64(len(body)) > m.fetchLimit {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("thumbnail exceeds size cap of %d bytes", m.fetchLimit), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return body, contentType, nil
}

// objectURL builds the public URL for a stored object. A custom endpoint
// (MinIO in local dev) uses path-style addressing.
func (m *S3Mirror) objectURL(key string) string {
	if m.endpointURL != "" {
		return fmt.Sprintf("%s/%s/%s", m.endpointURL, m.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.bucket, m.region, key)
}

func objectKey(accountID, storyID string) string {
	return fmt.Sprintf("stories/%s/%s.jpg", accountID, storyID)
}
