package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/thumbcache/metadata"
	"github.com/briangreenhill/thumbcache/thumbnail"
)

const (
	TaskWarmThumbnail = "thumbnail:warm"
	QueueThumbnails   = "thumbnails"
)

type WarmThumbnailPayload struct {
	URL string `json:"url"`
}

// NewWarmThumbnailTask builds a task that resolves rawURL so later lookups hit the cache
func NewWarmThumbnailTask(rawURL string) (*asynq.Task, error) {
	u, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(WarmThumbnailPayload{URL: u.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarmThumbnail, payload,
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(QueueThumbnails),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}

// ParseTarget accepts only absolute http(s) URLs
func ParseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", metadata.ErrUnsupportedURL, rawURL)
	}
	return u, nil
}

// Warmer resolves a thumbnail, populating the cache on a miss
type Warmer interface {
	Get(ctx context.Context, u *url.URL) (image.Image, error)
}

// HandleWarmThumbnail returns the asynq handler for TaskWarmThumbnail.
// Failures that a retry cannot fix are marked with asynq.SkipRetry.
func HandleWarmThumbnail(w Warmer, log zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p WarmThumbnailPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Error().Err(err).Msg("bad warm payload")
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		u, err := ParseTarget(p.URL)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		start := time.Now()
		_, err = w.Get(ctx, u)
		duration := time.Since(start)

		switch {
		case err == nil:
			log.Info().Str("url", p.URL).Dur("duration", duration).Msg("thumbnail warmed")
			return nil
		case errors.Is(err, thumbnail.ErrNotFound),
			errors.Is(err, metadata.ErrUnsupportedType),
			errors.Is(err, metadata.ErrResourceTooLarge),
			errors.Is(err, metadata.ErrUnsupportedURL):
			log.Warn().Err(err).Str("url", p.URL).Dur("duration", duration).Msg("no thumbnail, dropping job")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			log.Warn().Err(err).Str("url", p.URL).Dur("duration", duration).Msg("warm failed, will retry")
			return err
		}
	}
}
