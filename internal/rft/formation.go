package rft

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/metrics"
	"github.com/lox/reservoirviz/internal/models"
)

// ensembleColors colours simulated lines and fancharts, one per ensemble.
var ensembleColors = []string{
	"#243746", "#eb0036", "#919ba2", "#7d0023", "#66737d", "#4c9ba1",
	"#a44c65", "#80b7bc", "#ff1243", "#919ba2", "#be8091", "#b2d4d7",
	"#ff597b", "#bdc3c7", "#d8b2bd", "#ffe7d6", "#d5eaf4", "#ff88a1",
}

// pastel2 is the qualitative palette the zone colours are spread over.
var pastel2 = []string{
	"#b3e2cd", "#fdcdac", "#cbd5e8", "#f4cae4",
	"#e6f5c9", "#fff2ae", "#f1e2cc", "#cccccc",
}

const formationColorCount = 20

var formationColors = spreadPalette(pastel2, formationColorCount)

// spreadPalette interpolates n colours evenly along stops.
func spreadPalette(stops []string, n int) []string {
	cs := make([]colorful.Color, len(stops))
	for i, h := range stops {
		cs[i], _ = colorful.Hex(h)
	}
	out := make([]string, n)
	for i := range out {
		pos := float64(i) / float64(n-1) * float64(len(cs)-1)
		lo := int(math.Floor(pos))
		hi := min(lo+1, len(cs)-1)
		out[i] = cs[lo].BlendLab(cs[hi], pos-float64(lo)).Clamped().Hex()
	}
	return out
}

// rgba formats a hex colour as a CSS rgba() string.
func rgba(hex string, opacity float64) string {
	c, err := colorful.Hex(hex)
	if err != nil {
		return hex
	}
	r, g, b := c.RGB255()
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", r, g, b, opacity)
}

// FormationFigure plots pressure against depth for one well: the zonation
// as background bands, observed pressures and simulated pressure profiles
// by ensemble. Depth increases downwards.
type FormationFigure struct {
	well       string
	formations []models.Formation
	sim        []models.PressurePoint
	obs        []models.PressurePoint
	ert        frame.Frame

	traces []figure.Trace
	shapes []figure.Shape
}

// NewFormationFigure keeps the rows of each input that belong to well. ert
// is the RFT observation frame; it may be nil.
func NewFormationFigure(well string, formations []models.Formation, sim, obs []models.PressurePoint, ert frame.Frame) *FormationFigure {
	offWell := func(p models.PressurePoint) bool { return p.Well != well }
	return &FormationFigure{
		well:       well,
		formations: slices.DeleteFunc(slices.Clone(formations), func(f models.Formation) bool { return f.Well != well }),
		sim:        slices.DeleteFunc(slices.Clone(sim), offWell),
		obs:        slices.DeleteFunc(slices.Clone(obs), offWell),
		ert:        ert.FilterWells([]string{well}),
	}
}

func pressureRange(points []models.PressurePoint, get func(models.PressurePoint) float64) float64 {
	m := math.NaN()
	for _, p := range points {
		if v := get(p); math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}

// maxPressure is the largest observed or simulated pressure, NaN when the
// well has neither.
func (f *FormationFigure) maxPressure() float64 {
	get := func(p models.PressurePoint) float64 { return p.Pressure }
	return frame.NanMax([]float64{pressureRange(f.obs, get), pressureRange(f.sim, get)})
}

// AddFormation draws each zone as a band between its top and base, with
// the zone name at the maximum pressure. An open-ended zone reaches the
// deepest simulated point and is dropped when that is above its top.
func (f *FormationFigure) AddFormation() {
	maxDepth := pressureRange(f.sim, func(p models.PressurePoint) float64 { return p.Depth })
	label := f.maxPressure()
	for i, z := range f.formations {
		base := z.BaseTVD
		if math.IsNaN(base) {
			if !(maxDepth > z.TopTVD) {
				continue
			}
			base = maxDepth
		}
		color := formationColors[i%len(formationColors)]
		f.shapes = append(f.shapes, figure.Shape{
			Type:      "rect",
			Name:      z.Zone,
			XRef:      "paper",
			YRef:      "y",
			X0:        0,
			X1:        1,
			Y0:        figure.Number(z.TopTVD),
			Y1:        figure.Number(base),
			Line:      &figure.Line{Color: color},
			FillColor: color,
			Layer:     "below",
		})
		f.traces = append(f.traces, figure.Trace{
			Type:       "scatter",
			Mode:       "text",
			X:          figure.Values{label},
			Y:          figure.Values{(z.TopTVD + base) / 2},
			Text:       []string{z.Zone},
			HoverInfo:  "skip",
			ShowLegend: figure.Bool(false),
		})
	}
}

// AddObserved adds the observed pressures of date as black markers.
func (f *FormationFigure) AddObserved(date string) {
	var x, y figure.Values
	for _, p := range f.obs {
		if p.Date == date {
			x = append(x, p.Pressure)
			y = append(y, p.Depth)
		}
	}
	f.traces = append(f.traces, figure.Trace{
		Type:   "scatter",
		Mode:   "markers",
		Name:   "Observations",
		X:      x,
		Y:      y,
		Marker: &figure.Marker{Color: "black", Size: figure.Number(20)},
	})
}

// AddErtObserved adds the RFT observations of date as blue markers at
// their TVD with OBS_ERR error bars. Only the rows of the first ensemble
// and realization are used since every realization repeats them. Nothing
// is added when the well has no observations on date.
func (f *FormationFigure) AddErtObserved(date string) {
	if len(f.ert) == 0 {
		return
	}
	first := f.ert[0]
	df := f.ert.Where(func(r models.RFTObservation) bool {
		return r.Date == date && r.Ensemble == first.Ensemble && r.Real == first.Real
	})
	if len(df) == 0 {
		return
	}
	obs, _ := df.Values(frame.Obs)
	tvd, _ := df.Values(frame.TVD)
	errs, _ := df.Values(frame.ObsErr)
	f.traces = append(f.traces, figure.Trace{
		Type:   "scatter",
		Mode:   "markers",
		Name:   "Ert observations",
		X:      obs,
		Y:      tvd,
		Marker: &figure.Marker{Color: "blue", Size: figure.Number(20)},
		ErrorX: &figure.ErrorBar{Type: "data", Array: errs, Visible: true},
	})
}

// simulated groups the simulated points of date by ensemble and then
// realization, keeping only the given ensembles. Ensembles are sorted by
// name and realizations by number; points keep depth order.
func (f *FormationFigure) simulated(date string, ensembles []string) (names []string, byEns map[string][][]models.PressurePoint) {
	grouped := make(map[string]map[int][]models.PressurePoint)
	for _, p := range f.sim {
		if p.Date != date || !slices.Contains(ensembles, p.Ensemble) {
			continue
		}
		if grouped[p.Ensemble] == nil {
			grouped[p.Ensemble] = make(map[int][]models.PressurePoint)
			names = append(names, p.Ensemble)
		}
		grouped[p.Ensemble][p.Real] = append(grouped[p.Ensemble][p.Real], p)
	}
	sort.Strings(names)

	byEns = make(map[string][][]models.PressurePoint, len(names))
	for _, ens := range names {
		reals := make([]int, 0, len(grouped[ens]))
		for r := range grouped[ens] {
			reals = append(reals, r)
		}
		sort.Ints(reals)
		for _, r := range reals {
			pts := grouped[ens][r]
			sort.SliceStable(pts, func(a, b int) bool { return pts[a].Depth < pts[b].Depth })
			byEns[ens] = append(byEns[ens], pts)
		}
	}
	return names, byEns
}

// AddSimulatedLines adds one pressure profile per realization of each
// ensemble on date, coloured by ensemble. Only the first realization of
// an ensemble shows in the legend.
func (f *FormationFigure) AddSimulatedLines(date string, ensembles []string) {
	names, byEns := f.simulated(date, ensembles)
	for j, ens := range names {
		color := ensembleColors[j%len(ensembleColors)]
		for i, pts := range byEns[ens] {
			x := make(figure.Values, len(pts))
			y := make(figure.Values, len(pts))
			for k, p := range pts {
				x[k], y[k] = p.Pressure, p.Depth
			}
			f.traces = append(f.traces, figure.Trace{
				Type:        "scatter",
				Mode:        "lines",
				Name:        ens,
				X:           x,
				Y:           y,
				HoverInfo:   "y+x+text",
				HoverText:   []string{fmt.Sprintf("Realization: %d, Ensemble: %s", pts[0].Real, ens)},
				Line:        &figure.Line{Color: color},
				ShowLegend:  figure.Bool(i == 0),
				LegendGroup: ens,
			})
		}
	}
}

// AddFanchart adds, per ensemble on date, the maximum, P10, mean, P90 and
// minimum simulated pressure by depth with the bands between them shaded.
// Realizations are interpolated onto the union of their depths first; a
// realization does not contribute outside its own depth range.
func (f *FormationFigure) AddFanchart(date string, ensembles []string) {
	names, byEns := f.simulated(date, ensembles)
	for j, ens := range names {
		depths, stats := fanchartStats(byEns[ens])
		color := ensembleColors[j%len(ensembleColors)]
		lineColor, fillColor := rgba(color, 1), rgba(color, 0.3)
		lines := []struct {
			label  string
			x      []float64
			line   *figure.Line
			fill   bool
			legend bool
		}{
			{"Maximum", stats.max, &figure.Line{Color: lineColor, Width: figure.Float(0)}, false, false},
			{"P10", stats.p10, &figure.Line{Color: lineColor, Width: figure.Float(0)}, true, false},
			{"Mean", stats.mean, &figure.Line{Color: lineColor}, true, true},
			{"P90", stats.p90, &figure.Line{Color: lineColor, Width: figure.Float(0)}, true, false},
			{"Minimum", stats.min, &figure.Line{Color: lineColor, Width: figure.Float(0)}, true, false},
		}
		for _, l := range lines {
			t := figure.Trace{
				Type:        "scatter",
				Mode:        "lines",
				Name:        ens,
				X:           l.x,
				Y:           depths,
				HoverText:   []string{l.label},
				Line:        l.line,
				LegendGroup: ens,
				ShowLegend:  figure.Bool(l.legend),
			}
			if l.fill {
				t.Fill = "tonexty"
				t.FillColor = fillColor
			}
			f.traces = append(f.traces, t)
		}
	}
}

type depthStats struct {
	mean, p10, p90, min, max []float64
}

// fanchartStats interpolates each realization's profile onto the sorted
// union of all depths and returns the statistics at each depth.
func fanchartStats(reals [][]models.PressurePoint) ([]float64, depthStats) {
	var depths []float64
	for _, pts := range reals {
		for _, p := range pts {
			depths = append(depths, p.Depth)
		}
	}
	sort.Float64s(depths)
	depths = slices.Compact(depths)

	st := depthStats{
		mean: make([]float64, len(depths)),
		p10:  make([]float64, len(depths)),
		p90:  make([]float64, len(depths)),
		min:  make([]float64, len(depths)),
		max:  make([]float64, len(depths)),
	}
	col := make([]float64, len(reals))
	for i, d := range depths {
		for r, pts := range reals {
			col[r] = interpolatePressure(pts, d)
		}
		st.mean[i] = frame.NanMean(col)
		st.p10[i] = frame.Quantile(col, 0.1)
		st.p90[i] = frame.Quantile(col, 0.9)
		st.min[i] = frame.NanMin(col)
		st.max[i] = frame.NanMax(col)
	}
	return depths, st
}

// interpolatePressure returns the pressure at depth along pts, which are
// sorted by depth, interpolating linearly. It is NaN outside the profile.
func interpolatePressure(pts []models.PressurePoint, depth float64) float64 {
	k := sort.Search(len(pts), func(i int) bool { return pts[i].Depth >= depth })
	switch {
	case k == len(pts):
		return math.NaN()
	case pts[k].Depth == depth:
		return pts[k].Pressure
	case k == 0:
		return math.NaN()
	}
	a, b := pts[k-1], pts[k]
	t := (depth - a.Depth) / (b.Depth - a.Depth)
	return a.Pressure + t*(b.Pressure-a.Pressure)
}

// Figure returns the traces added so far with a reversed depth axis and
// the zone bands as layout shapes.
func (f *FormationFigure) Figure() figure.Figure {
	layout := figure.Layout{
		Height:    800,
		HoverMode: "closest",
		Legend:    &figure.Legend{Orientation: "h"},
		Margin:    &figure.Margin{T: figure.Int(50)},
		Shapes:    append([]figure.Shape{}, f.shapes...),
	}
	x := layout.XAxis(1)
	x.Title = &figure.Title{Text: "Pressure"}
	x.ShowGrid = figure.Bool(false)
	y := layout.YAxis(1)
	y.Title = &figure.Title{Text: "Depth"}
	y.AutoRange = "reversed"
	y.ShowGrid = figure.Bool(false)

	metrics.FigureBuildsTotal.WithLabelValues("formation").Inc()
	return figure.Figure{Data: append([]figure.Trace(nil), f.traces...), Layout: layout}
}
