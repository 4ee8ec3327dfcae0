package rft

import (
	"fmt"
	"sort"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/models"
)

// MapFigure plots well misfit at well locations, optionally over fault
// lines, for a single ensemble.
type MapFigure struct {
	wells  frame.Frame
	traces []figure.Trace
}

// NewMapFigure averages the ensemble's measurements per well and date.
func NewMapFigure(df frame.Frame, ensemble string) (*MapFigure, error) {
	ensdf, err := df.Filter(map[string]string{frame.Ensemble: ensemble})
	if err != nil {
		return nil, err
	}
	mean, err := ensdf.GroupMean(frame.Well, frame.Date, frame.Ensemble)
	if err != nil {
		return nil, err
	}
	return &MapFigure{wells: mean}, nil
}

// AddMisfitPlot adds a marker per well measured between from and to
// (inclusive, compared as text). Sizes and colours are scaled over all
// dates so the scale does not shift as the window moves.
func (m *MapFigure) AddMisfitPlot(sizeBy, colorBy, from, to string) error {
	allSizes, err := m.wells.Values(sizeBy)
	if err != nil {
		return fmt.Errorf("size column: %w", err)
	}
	allColors, err := m.wells.Values(colorBy)
	if err != nil {
		return fmt.Errorf("color column: %w", err)
	}

	df := m.wells.Where(func(r models.RFTObservation) bool {
		return r.Date >= from && r.Date <= to
	})
	east, _ := df.Values(frame.East)
	north, _ := df.Values(frame.North)
	sizes, _ := df.Values(sizeBy)
	colors, _ := df.Values(colorBy)
	names, _ := df.Strings(frame.Well)

	hover := make([]string, len(df))
	for i, r := range df {
		hover[i] = fmt.Sprintf("Well: %s<br>Mean simulated pressure: %.2f<br>Mean misfit: %.2f<br>Stddev pressure: %.2f",
			r.Well, r.Simulated, r.Diff, r.Stddev)
	}

	m.traces = append(m.traces, figure.Trace{
		Mode:       "markers",
		X:          east,
		Y:          north,
		Text:       names,
		CustomData: names,
		HoverText:  hover,
		HoverInfo:  "text",
		Marker: &figure.Marker{
			Size:       figure.Values(sizes),
			SizeRef:    2 * frame.Quantile(allSizes, 0.9) / (mapMarkerSize * mapMarkerSize),
			SizeMode:   "area",
			SizeMin:    6,
			Color:      figure.Values(colors),
			CMin:       figure.Num(frame.NanMin(allColors)),
			CMax:       figure.Num(frame.Quantile(allColors, 0.9)),
			ColorScale: blueRed,
			ShowScale:  true,
			ColorBar:   &figure.ColorBar{X: 0},
		},
	})
	return nil
}

// AddFaultLines adds one grey line per fault polygon, vertices in Seq
// order. Polygons are drawn in PolyID order.
func (m *MapFigure) AddFaultLines(points []models.FaultPoint) {
	byPoly := make(map[string][]models.FaultPoint)
	for _, p := range points {
		byPoly[p.PolyID] = append(byPoly[p.PolyID], p)
	}
	ids := make([]string, 0, len(byPoly))
	for id := range byPoly {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		poly := byPoly[id]
		sort.SliceStable(poly, func(a, b int) bool { return poly[a].Seq < poly[b].Seq })
		x := make(figure.Values, len(poly))
		y := make(figure.Values, len(poly))
		for i, p := range poly {
			x[i], y[i] = p.X, p.Y
		}
		m.traces = append(m.traces, figure.Trace{
			Type:       "scatter",
			Mode:       "lines",
			X:          x,
			Y:          y,
			HoverInfo:  "none",
			ShowLegend: figure.Bool(false),
			Line:       &figure.Line{Color: "grey", Width: figure.Float(1)},
		})
	}
}

// Figure returns the traces added so far with the map layout.
func (m *MapFigure) Figure() figure.Figure {
	var layout figure.Layout
	layout.HoverMode = "closest"
	layout.Legend = &figure.Legend{ItemSizing: "constant", Orientation: "h"}
	layout.Height = 800
	layout.Colorway = []string{"red", "blue"}
	layout.Margin = &figure.Margin{T: figure.Int(50), L: figure.Int(0), R: figure.Int(0)}

	x := layout.XAxis(1)
	x.Constrain = "domain"
	x.ShowGrid = figure.Bool(false)
	y := layout.YAxis(1)
	y.ScaleAnchor = "x"
	y.ShowGrid = figure.Bool(false)

	data := make([]figure.Trace, len(m.traces))
	copy(data, m.traces)
	return figure.Figure{Data: data, Layout: layout}
}
