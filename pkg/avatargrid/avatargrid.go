// Package avatargrid composites player avatar thumbnails into a single PNG
// grid image.
package avatargrid

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
)

// PNG composites the given encoded images into rows of perRow size×size
// thumbnails separated by pad pixels on a transparent background, and
// returns the encoded result. Undecodable images are skipped; an error is
// returned only if none decode.
func PNG(images [][]byte, perRow, size, pad int) ([]byte, error) {
	var thumbs []image.Image
	for _, buf := range images {
		img, _, err := image.Decode(bytes.NewReader(buf))
		if err != nil {
			continue
		}
		thumbs = append(thumbs, scale(img, size))
	}
	if len(thumbs) == 0 {
		return nil, fmt.Errorf("no decodable images")
	}

	cols := len(thumbs)
	if cols > perRow {
		cols = perRow
	}
	rows := (len(thumbs) + perRow - 1) / perRow

	w := cols*size + (cols-1)*pad
	h := rows*size + (rows-1)*pad
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for i, t := range thumbs {
		x := (i % perRow) * (size + pad)
		y := (i / perRow) * (size + pad)
		draw.Draw(dst, image.Rect(x, y, x+size, y+size), t, t.Bounds().Min, draw.Over)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// scale resizes img to size×size with nearest-neighbour sampling. Avatars
// are already square and tiny, so anything fancier is wasted.
func scale(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*b.Dx()/size
			sy := b.Min.Y + y*b.Dy()/size
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
