package thumbnail

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizeStretchesToExactSize(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"downscale", 512, 512},
		{"upscale", 16, 16},
		{"wide", 400, 100},
		{"tall", 30, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			for y := 0; y < tt.h; y++ {
				for x := 0; x < tt.w; x++ {
					src.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
				}
			}

			dst := Resize(src, DefaultSize, DefaultSize)
			assert.Equal(t, image.Rect(0, 0, 180, 180), dst.Bounds())
			// a solid source stays solid, corners included
			assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, dst.RGBAAt(0, 0))
			assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, dst.RGBAAt(179, 179))
		})
	}
}

func TestResizeHandlesOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 30))
	dst := Resize(src, 5, 7)
	assert.Equal(t, image.Rect(0, 0, 5, 7), dst.Bounds())
}
