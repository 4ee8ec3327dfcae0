// Package rft builds the RFT pressure figures: the simulated-versus-observed
// crossplot, the cumulative misfit per realization, and the misfit map.
package rft

import (
	"fmt"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/frame"
)

// Range is an axis range [Min, Max].
type Range struct {
	Min float64
	Max float64
}

func (r Range) values() figure.Values { return figure.Values{r.Min, r.Max} }

const (
	highlight     = "DarkOrange"
	subplotGap    = 0.1
	crossplotSize = 30.0
	mapMarkerSize = 40.0
)

var blueRed = []figure.ColorStop{{Pos: 0, Color: "rgb(0,0,255)"}, {Pos: 1, Color: "rgb(255,0,0)"}}

// observationKeys identifies a single measurement within an ensemble.
var observationKeys = []string{frame.Well, frame.Date, frame.Zone, frame.Ensemble}

// SizeColorSettings returns the marker size reference and the colour
// limits shared by all subplots: sizeRef is the 90th percentile of sizeBy,
// cmin the minimum and cmax the 90th percentile of colorBy, all computed
// after averaging duplicate measurements.
func SizeColorSettings(df frame.Frame, sizeBy, colorBy string) (sizeRef, cmin, cmax float64, err error) {
	mean, err := df.GroupMean(observationKeys...)
	if err != nil {
		return 0, 0, 0, err
	}
	sizes, err := mean.Values(sizeBy)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("size column: %w", err)
	}
	colors, err := mean.Values(colorBy)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("color column: %w", err)
	}
	return frame.Quantile(sizes, 0.9), frame.NanMin(colors), frame.Quantile(colors, 0.9), nil
}

// FindSimRange returns the combined range of OBS and SIMULATED after
// averaging duplicate measurements, padded by 10% of its width at both
// ends. An empty frame gives a zero range.
func FindSimRange(df frame.Frame) Range {
	mean, _ := df.GroupMean(observationKeys...)
	if len(mean) == 0 {
		return Range{}
	}
	obs, _ := mean.Values(frame.Obs)
	sim, _ := mean.Values(frame.Simulated)
	all := append(obs, sim...)

	lo, hi := frame.NanMin(all), frame.NanMax(all)
	pad := (hi - lo) * 0.1
	return Range{Min: lo - pad, Max: hi + pad}
}

// UpdateCrossplot builds one simulated-versus-observed scatter subplot per
// ensemble for the active measurements of wells. Size and colour scales and
// the axis range are shared by all subplots.
func UpdateCrossplot(df frame.Frame, wells []string, sizeBy, colorBy string) (figure.Figure, error) {
	if !frame.IsNumeric(sizeBy) {
		return figure.Figure{}, fmt.Errorf("size column: %w: %q", frame.ErrUnknownColumn, sizeBy)
	}
	if !frame.IsNumeric(colorBy) {
		return figure.Figure{}, fmt.Errorf("color column: %w: %q", frame.ErrUnknownColumn, colorBy)
	}

	df = df.FilterWells(wells).ActiveOnly()
	ensembles, err := df.Unique(frame.Ensemble)
	if err != nil {
		return figure.Figure{}, err
	}

	layout := figure.Subplots(len(ensembles), subplotGap, ensembles)
	simRange := FindSimRange(df)
	sizeRef, cmin, cmax, err := SizeColorSettings(df, sizeBy, colorBy)
	if err != nil {
		return figure.Figure{}, err
	}

	traces := make([]figure.Trace, 0, len(ensembles))
	for i, ens := range ensembles {
		id := figure.AxisID(i + 1)
		ensdf, err := df.Filter(map[string]string{frame.Ensemble: ens})
		if err != nil {
			return figure.Figure{}, err
		}
		mean, err := ensdf.GroupMean(frame.Well, frame.Date, frame.Zone)
		if err != nil {
			return figure.Figure{}, err
		}

		obs, _ := mean.Values(frame.Obs)
		sim, _ := mean.Values(frame.Simulated)
		sizes, _ := mean.Values(sizeBy)
		colors, _ := mean.Values(colorBy)

		trace := figure.Trace{
			Type:      "scatter",
			Mode:      "markers",
			X:         obs,
			Y:         sim,
			HoverText: crossplotHover(mean),
			HoverInfo: "text",
			Marker: &figure.Marker{
				Size:       figure.Values(sizes),
				SizeRef:    2 * sizeRef / (crossplotSize * crossplotSize),
				SizeMode:   "area",
				SizeMin:    6,
				Color:      figure.Values(colors),
				CMin:       figure.Num(cmin),
				CMax:       figure.Num(cmax),
				ColorScale: blueRed,
				ColorBar:   &figure.ColorBar{X: -0.15},
				ShowScale:  i == 0,
			},
		}
		trace.OnAxes(id)
		traces = append(traces, trace)

		layout.Shapes = append(layout.Shapes, diagonalLine(simRange, id))

		x := layout.XAxis(id)
		x.Range = simRange.values()
		x.Title = &figure.Title{Text: "Pressure Observation"}
		y := layout.YAxis(id)
		y.Range = simRange.values()
		y.Title = &figure.Title{Text: "Simulated mean pressure"}
	}

	layout.Height = 1000
	layout.ShowLegend = figure.Bool(false)
	layout.Title = &figure.Title{
		Text:    "<b>RFT crossplot - sim vs obs</b>",
		Font:    &figure.Font{Size: 30, Color: highlight},
		X:       figure.Float(0.5),
		XAnchor: "center",
	}
	return figure.Figure{Data: traces, Layout: layout}, nil
}

func crossplotHover(df frame.Frame) []string {
	out := make([]string, len(df))
	for i, r := range df {
		out[i] = fmt.Sprintf("Well: %s<br>Zone: %s<br>Pressure observation: %.2f"+
			"<br>Mean simulated pressure: %.2f<br>Mean misfit: %.2f<br>Stddev pressure: %.2f",
			r.Well, r.Zone, r.Obs, r.Simulated, r.Diff, r.Stddev)
	}
	return out
}

// diagonalLine is the identity line across r on subplot id.
func diagonalLine(r Range, id figure.AxisID) figure.Shape {
	return figure.Shape{
		Type: "line",
		XRef: id.XRef(),
		YRef: id.YRef(),
		X0:   figure.Number(r.Min),
		Y0:   figure.Number(r.Min),
		X1:   figure.Number(r.Max),
		Y1:   figure.Number(r.Max),
		Line: &figure.Line{Color: highlight, Width: figure.Float(3)},
	}
}
