package xsection

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/surface"
)

// Statistics summarizes several realizations of one surface sampled along
// the same fence. Every slice is indexed like HLen.
type Statistics struct {
	Name   string
	HLen   []float64
	Mean   []float64
	P10    []float64
	P90    []float64
	Min    []float64
	Max    []float64
	StdDev []float64
}

// NewStatistics computes per-point statistics over realizations, each the
// samples of one realization along fence. Undefined samples are skipped;
// a point with no defined sample is NaN in every statistic.
func NewStatistics(name string, fence surface.Fence, realizations [][]float64) (Statistics, error) {
	if len(realizations) == 0 {
		return Statistics{}, fmt.Errorf("statistics %s: no realizations", name)
	}
	for i, z := range realizations {
		if len(z) != len(fence) {
			return Statistics{}, fmt.Errorf("statistics %s: realization %d has %d values for %d fence points", name, i, len(z), len(fence))
		}
	}

	n := len(fence)
	st := Statistics{
		Name:   name,
		HLen:   fence.HLen(),
		Mean:   make([]float64, n),
		P10:    make([]float64, n),
		P90:    make([]float64, n),
		Min:    make([]float64, n),
		Max:    make([]float64, n),
		StdDev: make([]float64, n),
	}
	col := make([]float64, len(realizations))
	for i := 0; i < n; i++ {
		for r, z := range realizations {
			col[r] = z[i]
		}
		st.Mean[i] = frame.NanMean(col)
		st.P10[i] = frame.Quantile(col, 0.1)
		st.P90[i] = frame.Quantile(col, 0.9)
		st.Min[i] = frame.NanMin(col)
		st.Max[i] = frame.NanMax(col)
		st.StdDev[i] = frame.NanStdDev(col)
	}
	return st, nil
}

// fanchart returns the maximum, P10, mean, P90 and minimum lines of st.
// The maximum line carries the hover text for all statistics; with fill
// the band between consecutive lines is shaded.
func (st Statistics) fanchart(color, zunit string, fill bool) ([]figure.Trace, error) {
	lineColor, err := rgba(color, 1)
	if err != nil {
		return nil, err
	}
	fillColor, _ := rgba(color, 0.3)

	hover := make([]string, len(st.HLen))
	for i := range hover {
		hover[i] = fmt.Sprintf("Minimum: %.2f %s<br>P10: %.2f %s<br>Mean: %.2f %s<br>P90: %.2f %s<br>Maximum: %.2f %s<br>Std.Dev: %.2f %s",
			st.Min[i], zunit, st.P10[i], zunit, st.Mean[i], zunit, st.P90[i], zunit, st.Max[i], zunit, st.StdDev[i], zunit)
	}

	width := figure.Float(1)
	if fill {
		width = figure.Float(0)
	}
	lines := []struct {
		y      []float64
		line   *figure.Line
		legend bool
	}{
		{st.Max, &figure.Line{Color: lineColor, Width: width}, false},
		{st.P10, &figure.Line{Color: lineColor, Width: width}, false},
		{st.Mean, &figure.Line{Color: lineColor}, true},
		{st.P90, &figure.Line{Color: lineColor, Width: width}, false},
		{st.Min, &figure.Line{Color: lineColor, Width: width}, false},
	}
	traces := make([]figure.Trace, len(lines))
	for i, l := range lines {
		t := figure.Trace{
			Type:        "scatter",
			Mode:        "lines",
			Name:        st.Name,
			X:           st.HLen,
			Y:           l.y,
			HoverInfo:   "skip",
			Line:        l.line,
			LegendGroup: st.Name,
			ShowLegend:  figure.Bool(l.legend),
		}
		if i == 0 {
			t.HoverText = hover
			t.HoverInfo = "text+name"
		} else if fill {
			t.Fill = "tonexty"
			t.FillColor = fillColor
		}
		traces[i] = t
	}
	return traces, nil
}

// rgba formats a hex colour as a CSS rgba() string with the given opacity.
func rgba(hex string, opacity float64) (string, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", fmt.Errorf("colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", r, g, b, math.Round(opacity*100)/100), nil
}
