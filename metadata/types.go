// Package metadata discovers preview resources for a web page: its title,
// its icon and its preview image.
package metadata

import (
	"context"
	"errors"
	"net/url"
)

// Type identifiers accepted by ResourceProvider.LoadData
const (
	TypePNG  = "image/png"
	TypeData = "application/octet-stream" // raw bytes, no conversion
)

var (
	// ErrUnsupportedType is returned when a resource cannot be delivered as the requested type
	ErrUnsupportedType = errors.New("resource cannot be represented as requested type")
	// ErrUnsupportedURL is returned for URLs that are not absolute http(s) URLs
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrResourceNotFound is returned when a linked resource answers 404 or 410
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceTooLarge is returned when a resource exceeds the body limit
	ErrResourceTooLarge = errors.New("resource exceeds size limit")
)

// ResourceProvider lazily loads a linked resource
type ResourceProvider interface {
	// LoadData fetches the resource and returns it encoded as typeIdentifier.
	// Empty data with a nil error means the resource exists but had no content.
	LoadData(ctx context.Context, typeIdentifier string) ([]byte, error)
}

// Metadata describes a fetched page
type Metadata struct {
	OriginalURL *url.URL // as requested
	URL         *url.URL // after redirects
	Title       string

	// IconProvider is nil when no icon could be located
	IconProvider ResourceProvider
	// ImageProvider is nil when the page declares no preview image
	ImageProvider ResourceProvider
}

// Provider fetches metadata for a URL
type Provider interface {
	FetchMetadata(ctx context.Context, u *url.URL) (*Metadata, error)
}
