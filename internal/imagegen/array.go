package imagegen

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ArrayImage renders z as an 8-bit greyscale image scaled between its
// smallest and largest defined values. Row 0 of z is the top image row.
// Undefined (NaN) cells are fully transparent. A constant array renders
// mid grey.
func ArrayImage(z *mat.Dense) *image.NRGBA {
	rows, cols := z.Dims()
	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < rows; r++ {
		for _, v := range z.RawRowView(r) {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c, v := range z.RawRowView(r) {
			if math.IsNaN(v) {
				continue
			}
			level := uint8(128)
			if hi > lo {
				level = uint8(math.Round((v - lo) / (hi - lo) * 255))
			}
			img.SetNRGBA(c, r, color.NRGBA{R: level, G: level, B: level, A: 255})
		}
	}
	return img
}

// ArrayToPNG renders z with ArrayImage and returns it as a PNG data URI.
func ArrayToPNG(z *mat.Dense) (string, error) {
	return pngDataURI(ArrayImage(z))
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func pngDataURI(img image.Image) (string, error) {
	b, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}
