package imagegen

import (
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Legend dimensions in pixels.
const (
	LegendWidth  = 320
	LegendHeight = 56
	legendPad    = 10
	legendBar    = 20
)

// Legend renders a horizontal colour bar for cm with the value range and
// unit printed underneath, encoded as PNG.
func Legend(cm *Colormap, min, max float64, unit string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, LegendWidth, LegendHeight))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	bar := image.Rect(legendPad, legendPad, LegendWidth-legendPad, legendPad+legendBar)
	xdraw.BiLinear.Scale(img, bar, cm.Image(256), image.Rect(0, 0, 256, 1), xdraw.Src, nil)

	face := basicfont.Face7x13
	baseline := bar.Max.Y + face.Metrics().Ascent.Ceil() + 4
	black := color.Black

	lo := formatValue(min)
	hi := formatValue(max)
	drawText(img, lo, bar.Min.X, baseline, black, face)
	drawText(img, hi, bar.Max.X-measure(face, hi), baseline, black, face)
	if unit != "" {
		drawText(img, unit, (LegendWidth-measure(face, unit))/2, baseline, black, face)
	}
	return encodePNG(img)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func measure(face font.Face, text string) int {
	return font.MeasureString(face, text).Ceil()
}

// drawText draws text with its baseline starting at (x, y).
func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
