package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/url"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/thumbcache/metadata"
	"github.com/briangreenhill/thumbcache/thumbnail"
)

type fakeWarmer struct {
	err  error
	urls []string
}

func (f *fakeWarmer) Get(_ context.Context, u *url.URL) (image.Image, error) {
	f.urls = append(f.urls, u.String())
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func TestNewWarmThumbnailTask(t *testing.T) {
	task, err := NewWarmThumbnailTask("https://example.com/page")
	require.NoError(t, err)

	assert.Equal(t, TaskWarmThumbnail, task.Type())
	var p WarmThumbnailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "https://example.com/page", p.URL)
}

func TestNewWarmThumbnailTaskRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "example.com", "ftp://example.com/file", "https://"} {
		_, err := NewWarmThumbnailTask(raw)
		assert.ErrorIs(t, err, metadata.ErrUnsupportedURL, raw)
	}
}

func TestHandleWarmThumbnail(t *testing.T) {
	w := &fakeWarmer{}
	h := HandleWarmThumbnail(w, zerolog.Nop())

	task, err := NewWarmThumbnailTask("https://example.com/")
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), task))
	assert.Equal(t, []string{"https://example.com/"}, w.urls)
}

func TestHandleWarmThumbnailRetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"not found", thumbnail.ErrNotFound, true},
		{"unsupported type", metadata.ErrUnsupportedType, true},
		{"missing favicon", fmt.Errorf("%w: %w", metadata.ErrResourceNotFound, thumbnail.ErrNotFound), true},
		{"oversized icon", metadata.ErrResourceTooLarge, true},
		{"network", errors.New("dial tcp: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HandleWarmThumbnail(&fakeWarmer{err: tt.err}, zerolog.Nop())
			task, err := NewWarmThumbnailTask("https://example.com/")
			require.NoError(t, err)

			err = h(context.Background(), task)
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleWarmThumbnailBadPayload(t *testing.T) {
	w := &fakeWarmer{}
	h := HandleWarmThumbnail(w, zerolog.Nop())

	err := h(context.Background(), asynq.NewTask(TaskWarmThumbnail, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h(context.Background(), asynq.NewTask(TaskWarmThumbnail, []byte(`{"url":"mailto:a@b"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, w.urls)
}
