package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Favicons are mostly ICO containers; registering a decoder lets the
// /favicon.ico fallback go through the regular image.Decode path.
func init() {
	image.RegisterFormat("ico", "\x00\x00\x01\x00", decodeICO, decodeICOConfig)
}

var errBadICO = errors.New("ico: invalid format")

type icoEntry struct {
	width, height int
	bitCount      uint16
	size, offset  uint32
}

// largestICOEntry returns the widest image in the directory, deepest color on ties
func largestICOEntry(data []byte) (icoEntry, error) {
	if len(data) < 6 || binary.LittleEndian.Uint16(data[2:4]) != 1 {
		return icoEntry{}, errBadICO
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if count == 0 || len(data) < 6+16*count {
		return icoEntry{}, errBadICO
	}

	var best icoEntry
	for i := 0; i < count; i++ {
		b := data[6+16*i : 6+16*(i+1)]
		e := icoEntry{
			width:    int(b[0]),
			height:   int(b[1]),
			bitCount: binary.LittleEndian.Uint16(b[6:8]),
			size:     binary.LittleEndian.Uint32(b[8:12]),
			offset:   binary.LittleEndian.Uint32(b[12:16]),
		}
		// a zero byte means 256
		if e.width == 0 {
			e.width = 256
		}
		if e.height == 0 {
			e.height = 256
		}
		if uint64(e.offset)+uint64(e.size) > uint64(len(data)) {
			continue
		}
		if e.width > best.width || (e.width == best.width && e.bitCount > best.bitCount) {
			best = e
		}
	}
	if best.size == 0 {
		return icoEntry{}, errBadICO
	}
	return best, nil
}

func decodeICO(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	e, err := largestICOEntry(data)
	if err != nil {
		return nil, err
	}
	payload := data[e.offset : e.offset+e.size]

	if bytes.HasPrefix(payload, pngSignature) {
		return png.Decode(bytes.NewReader(payload))
	}
	return decodeDIB(payload)
}

// decodeDIB decodes a headerless bitmap by rebuilding the BMP file header.
// ICO bitmaps store twice their height to make room for the AND mask.
func decodeDIB(dib []byte) (image.Image, error) {
	if len(dib) < 40 {
		return nil, errBadICO
	}
	header := make([]byte, len(dib))
	copy(header, dib)

	headerSize := binary.LittleEndian.Uint32(header[0:4])
	height := int32(binary.LittleEndian.Uint32(header[8:12]))
	binary.LittleEndian.PutUint32(header[8:12], uint32(height/2))

	bitCount := binary.LittleEndian.Uint16(header[14:16])
	paletteSize := uint32(0)
	if bitCount <= 8 {
		colors := binary.LittleEndian.Uint32(header[32:36])
		if colors == 0 {
			colors = 1 << bitCount
		}
		paletteSize = colors * 4
	}

	file := make([]byte, 14, 14+len(header))
	file[0], file[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(file[2:6], uint32(14+len(header)))
	binary.LittleEndian.PutUint32(file[10:14], 14+headerSize+paletteSize)
	file = append(file, header...)

	img, err := bmp.Decode(bytes.NewReader(file))
	if err != nil {
		return nil, err
	}
	if uint64(headerSize)+uint64(paletteSize) > uint64(len(dib)) {
		return img, nil
	}
	return applyICOAlpha(img, dib[headerSize+paletteSize:], int(bitCount), int(height/2)), nil
}

// applyICOAlpha restores the transparency the BMP decoder drops. 32bpp
// images carry alpha in every fourth byte of the color data; other depths,
// and 32bpp images whose alpha bytes are all zero, use the 1bpp AND mask
// stored after the color data, where a set bit is transparent.
func applyICOAlpha(img image.Image, pixels []byte, bitCount, height int) image.Image {
	b := img.Bounds()
	width := b.Dx()
	topDown := height < 0
	if topDown {
		height = -height
	}
	if height != b.Dy() || width == 0 {
		return img
	}

	colorStride := (width*bitCount + 31) / 32 * 4
	maskStride := (width + 31) / 32 * 4
	colorSize := colorStride * height

	row := func(y int) int {
		if topDown {
			return y
		}
		return height - 1 - y
	}

	alpha := make([]byte, width*height)
	found := false
	if bitCount == 32 && len(pixels) >= colorSize {
		for y := 0; y < height; y++ {
			off := row(y) * colorStride
			for x := 0; x < width; x++ {
				a := pixels[off+x*4+3]
				alpha[y*width+x] = a
				found = found || a != 0
			}
		}
	}
	if !found {
		mask := pixels[min(colorSize, len(pixels)):]
		if len(mask) < maskStride*height {
			return img
		}
		for y := 0; y < height; y++ {
			off := row(y) * maskStride
			for x := 0; x < width; x++ {
				if mask[off+x/8]&(0x80>>(x%8)) != 0 {
					alpha[y*width+x] = 0
				} else {
					alpha[y*width+x] = 0xff
				}
			}
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.Pix[y*out.Stride+x*4+3] = alpha[y*width+x]
		}
	}
	return out
}

func decodeICOConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	e, err := largestICOEntry(data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.NRGBAModel, Width: e.width, Height: e.height}, nil
}
