package thumbnail

import (
	"image"

	"golang.org/x/image/draw"
)

// DefaultSize is the edge length of stored thumbnails
const DefaultSize = 180

// Resize draws src stretched over a new width x height canvas. The aspect
// ratio is not preserved.
func Resize(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
