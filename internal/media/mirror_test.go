package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alrt/internal/config"
)

type mockS3 struct {
	puts []*s3.PutObjectInput
	err  error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.puts = append(m.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMediaConfig(endpoint string) config.MediaConfig {
	return config.MediaConfig{
		Bucket:      "alrt-media",
		Region:      "us-east-1",
		EndpointURL: endpoint,
		FetchLimit:  1024,
		Timeout:     5 * time.Second,
	}
}

func TestMirror_StoresThumbnailAndReturnsURL(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer cdn.Close()

	store := &mockS3{}
	mirror := NewS3Mirror(testMediaConfig(""), store, cdn.Client(), quietLogger())
	require.NotNil(t, mirror)

	url, err := mirror.Mirror(context.Background(), "acc-1", "story-9", cdn.URL+"/thumb.jpg")
	require.NoError(t, err)

	assert.Equal(t, "https://alrt-media.s3.us-east-1.amazonaws.com/stories/acc-1/story-9.jpg", url)
	require.Len(t, store.puts, 1)
	assert.Equal(t, "alrt-media", *store.puts[0].Bucket)
	assert.Equal(t, "stories/acc-1/story-9.jpg", *store.puts[0].Key)
	assert.Equal(t, "image/jpeg", *store.puts[0].ContentType)
}

func TestMirror_CustomEndpointUsesPathStyle(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer cdn.Close()

	mirror := NewS3Mirror(testMediaConfig("http://localhost:9000"), &mockS3{}, cdn.Client(), quietLogger())
	require.NotNil(t, mirror)

	url, err := mirror.Mirror(context.Background(), "acc-1", "s1", cdn.URL+"/thumb.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/alrt-media/stories/acc-1/s1.jpg", url)
}

func TestMirror_OversizedDownloadFails(t *testing.T) {
	big := make([]byte, 2048)
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer cdn.Close()

	store := &mockS3{}
	mirror := NewS3Mirror(testMediaConfig(""), store, cdn.Client(), quietLogger())

	_, err := mirror.Mirror(context.Background(), "acc-1", "s1", cdn.URL+"/thumb.jpg")
	require.Error(t, err)
	assert.Empty(t, store.puts)
}

func TestMirror_DownloadFailureDoesNotTouchStorage(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer cdn.Close()

	store := &mockS3{}
	mirror := NewS3Mirror(testMediaConfig(""), store, cdn.Client(), quietLogger())

	_, err := mirror.Mirror(context.Background(), "acc-1", "s1", cdn.URL+"/gone.jpg")
	require.Error(t, err)
	assert.Empty(t, store.puts)
}

func TestNewS3Mirror_NoBucketDisablesMirroring(t *testing.T) {
	mirror := NewS3Mirror(config.MediaConfig{}, &mockS3{}, nil, quietLogger())
	assert.Nil(t, mirror)
}
