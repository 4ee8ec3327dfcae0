package imagegen

import (
	"bytes"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ScatterSeries is one set of points for a preview chart.
type ScatterSeries struct {
	Name string
	X    []float64
	Y    []float64
}

// PreviewOptions configures a scatter preview.
type PreviewOptions struct {
	Title    string
	XLabel   string
	YLabel   string
	Min, Max float64 // shared axis range; ignored when Min >= Max
	Diagonal bool    // draw the identity line across the range
	Width    int
	Height   int
}

var previewPalette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
}

// pointStyle renders points only, with no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

// ScatterPNG renders series as a static scatter chart. It is a lightweight
// stand-in for the interactive figure when a PNG is wanted, e.g. for
// reports. Points with NaN coordinates are dropped.
func ScatterPNG(series []ScatterSeries, opts PreviewOptions) ([]byte, error) {
	if opts.Width == 0 {
		opts.Width = 800
	}
	if opts.Height == 0 {
		opts.Height = 600
	}

	var all []chart.Series
	for i, s := range series {
		xs, ys := finitePairs(s.X, s.Y)
		if len(xs) == 0 {
			continue
		}
		all = append(all, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   pointStyle(previewPalette[i%len(previewPalette)]),
		})
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no points to plot")
	}

	var axisRange *chart.ContinuousRange
	if opts.Min < opts.Max {
		axisRange = &chart.ContinuousRange{Min: opts.Min, Max: opts.Max}
		if opts.Diagonal {
			all = append(all, chart.ContinuousSeries{
				Name:    "y = x",
				XValues: []float64{opts.Min, opts.Max},
				YValues: []float64{opts.Min, opts.Max},
				Style:   chart.Style{StrokeColor: drawing.ColorFromHex("ff8c00"), StrokeWidth: 3},
			})
		}
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: opts.XLabel, Range: axisRange},
		YAxis:      chart.YAxis{Name: opts.YLabel, Range: axisRange},
		Series:     all,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

func finitePairs(x, y []float64) (xs, ys []float64) {
	n := min(len(x), len(y))
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}
