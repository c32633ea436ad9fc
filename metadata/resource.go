package metadata

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// RemoteResource is a ResourceProvider backed by an HTTP URL
type RemoteResource struct {
	URL    *url.URL
	client *Client
}

var _ ResourceProvider = (*RemoteResource)(nil)

// LoadData downloads the resource. For TypePNG, other raster formats are
// transcoded; anything undecodable yields ErrUnsupportedType.
func (r *RemoteResource) LoadData(ctx context.Context, typeIdentifier string) ([]byte, error) {
	if typeIdentifier != TypePNG && typeIdentifier != TypeData {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typeIdentifier)
	}

	resp, err := r.client.get(ctx, r.URL.String(), "image/*,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("GET %s: %s: %w", r.URL, resp.Status, ErrResourceNotFound)
	default:
		return nil, fmt.Errorf("GET %s: %s", r.URL, resp.Status)
	}

	// one byte past the limit tells a full read from a truncated one
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.client.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.URL, err)
	}
	if int64(len(data)) > r.client.maxBodyBytes {
		return nil, fmt.Errorf("GET %s: more than %d bytes: %w", r.URL, r.client.maxBodyBytes, ErrResourceTooLarge)
	}
	if len(data) == 0 || typeIdentifier == TypeData || bytes.HasPrefix(data, pngSignature) {
		return data, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedType, r.URL, err)
	}
	r.client.log.Debug().Str("url", r.URL.String()).Str("format", format).Msg("transcoding resource to png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.URL, err)
	}
	return buf.Bytes(), nil
}
