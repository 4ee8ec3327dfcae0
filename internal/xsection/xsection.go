// Package xsection builds cross-section figures of surfaces sampled along a
// fence.
package xsection

import (
	"errors"
	"fmt"
	"math"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/metrics"
	"github.com/lox/reservoirviz/internal/surface"
)

// DefaultColors is the line palette used when Options.Colors is empty.
var DefaultColors = []string{
	"#1f77b4",
	"#ff7f0e",
	"#2ca02c",
	"#d62728",
	"#9467bd",
	"#8c564b",
	"#e377c2",
	"#7f7f7f",
	"#bcbd22",
	"#17becf",
}

// Profile is one surface sampled along a fence: Z[i] is the depth at
// horizontal distance HLen[i] from the first fence point.
type Profile struct {
	Name string
	HLen []float64
	Z    []float64
}

// NewProfile pairs the samples of a surface with the cumulative length of
// the fence they were taken along.
func NewProfile(name string, fence surface.Fence, z []float64) (Profile, error) {
	if len(z) != len(fence) {
		return Profile{}, fmt.Errorf("profile %s: %d values for %d fence points", name, len(z), len(fence))
	}
	return Profile{Name: name, HLen: fence.HLen(), Z: z}, nil
}

type Options struct {
	// ZMin and ZMax bound the depth axis. Unset bounds follow the defined
	// extent of the profiles.
	ZMin, ZMax *float64
	// Fill shades the area between each surface and the one above it.
	Fill   bool
	Colors []string
	ZUnit  string
	// Statistics are drawn as fancharts after the profiles, continuing
	// the colour sequence.
	Statistics []Statistics
}

// Build returns a figure with one line per profile, ordered top to base,
// followed by one fanchart per entry of opts.Statistics. Depth increases
// downwards.
func Build(profiles []Profile, opts Options) (figure.Figure, error) {
	if len(profiles) == 0 && len(opts.Statistics) == 0 {
		return figure.Figure{}, errors.New("no surfaces to plot")
	}
	colors := opts.Colors
	if len(colors) == 0 {
		colors = DefaultColors
	}

	traces := make([]figure.Trace, 0, len(profiles))
	var all []float64
	for i, p := range profiles {
		t := figure.Trace{
			Type: "scatter",
			Mode: "lines",
			Name: p.Name,
			X:    p.HLen,
			Y:    p.Z,
			Line: &figure.Line{Color: colors[i%len(colors)]},
		}
		if i > 0 && opts.Fill {
			t.Fill = "tonexty"
		}
		traces = append(traces, t)
		all = append(all, p.Z...)
	}
	for k, st := range opts.Statistics {
		fan, err := st.fanchart(colors[(len(profiles)+k)%len(colors)], opts.ZUnit, opts.Fill)
		if err != nil {
			return figure.Figure{}, err
		}
		traces = append(traces, fan...)
		all = append(all, st.Min...)
		all = append(all, st.Max...)
	}

	zmin, zmax := frame.NanMin(all), frame.NanMax(all)
	if opts.ZMin != nil {
		zmin = *opts.ZMin
	}
	if opts.ZMax != nil {
		zmax = *opts.ZMax
	}

	depth := "Depth"
	if opts.ZUnit != "" {
		depth = fmt.Sprintf("Depth (%s)", opts.ZUnit)
	}
	layout := figure.Layout{
		Height:    800,
		HoverMode: "x",
		Legend:    &figure.Legend{TraceOrder: "normal"},
	}
	x := layout.XAxis(1)
	x.Title = &figure.Title{Text: "Distance from well"}
	x.ShowGrid = figure.Bool(false)
	x.ZeroLine = figure.Bool(false)
	y := layout.YAxis(1)
	y.Title = &figure.Title{Text: depth}
	y.ShowGrid = figure.Bool(false)
	y.ZeroLine = figure.Bool(false)
	if !math.IsNaN(zmin) && !math.IsNaN(zmax) {
		y.Range = figure.Values{zmax, zmin}
	}

	metrics.FigureBuildsTotal.WithLabelValues("xsection").Inc()
	return figure.Figure{Data: traces, Layout: layout}, nil
}
