package cache

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
)

// Transformer converts values to and from the bytes kept in the persistent tier
type Transformer[T any] struct {
	ToData   func(T) ([]byte, error)
	FromData func([]byte) (T, error)
}

// ImageTransformer stores images as PNG
func ImageTransformer() Transformer[image.Image] {
	return Transformer[image.Image]{
		ToData: func(img image.Image) ([]byte, error) {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("encode png: %w", err)
			}
			return buf.Bytes(), nil
		},
		FromData: func(data []byte) (image.Image, error) {
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("decode image: %w", err)
			}
			return img, nil
		},
	}
}
