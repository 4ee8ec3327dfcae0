package rft

import (
	"fmt"
	"sort"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/frame"
)

// realizationMisfit sums DIFF per realization of each ensemble, keyed by
// ensemble name.
func realizationMisfit(df frame.Frame) (map[string]frame.Frame, error) {
	sums, err := df.GroupSum(frame.Ensemble, frame.Real)
	if err != nil {
		return nil, err
	}
	out := make(map[string]frame.Frame)
	for _, r := range sums {
		out[r.Ensemble] = append(out[r.Ensemble], r)
	}
	return out, nil
}

// FindMaxDiff returns the largest cumulative misfit of any realization in
// any ensemble, or zero for an empty frame.
func FindMaxDiff(df frame.Frame) float64 {
	byEns, _ := realizationMisfit(df)
	var maxDiff float64
	for _, reals := range byEns {
		diffs, _ := reals.Values(frame.Diff)
		if m := frame.NanMax(diffs); m > maxDiff {
			maxDiff = m
		}
	}
	return maxDiff
}

// UpdateMisfitPlot builds one bar subplot per ensemble showing the
// cumulative misfit of each realization over the measurements of wells,
// sorted from best to worst match, with the ensemble average marked.
func UpdateMisfitPlot(df frame.Frame, wells []string) (figure.Figure, error) {
	df = df.FilterWells(wells)
	ensembles, err := df.Unique(frame.Ensemble)
	if err != nil {
		return figure.Figure{}, err
	}
	byEns, err := realizationMisfit(df)
	if err != nil {
		return figure.Figure{}, err
	}
	maxDiff := FindMaxDiff(df)

	layout := figure.Subplots(len(ensembles), subplotGap, nil)
	traces := make([]figure.Trace, 0, len(ensembles))
	for i, ens := range ensembles {
		id := figure.AxisID(i + 1)
		reals := append(frame.Frame(nil), byEns[ens]...)
		sort.SliceStable(reals, func(a, b int) bool { return reals[a].Diff < reals[b].Diff })

		diffs, _ := reals.Values(frame.Diff)
		realNo, _ := reals.Values(frame.Real)
		mean := frame.NanMean(diffs)

		trace := figure.Trace{
			Type: "bar",
			Name: ens,
			X:    realNo,
			Y:    diffs,
		}
		trace.OnAxes(id)
		traces = append(traces, trace)

		x := layout.XAxis(id)
		x.Type = "category"
		x.Title = &figure.Title{Text: "Realization"}
		y := layout.YAxis(id)
		y.Range = figure.Values{0, maxDiff}
		y.Title = &figure.Title{Text: "Cumulative misfit"}

		layout.Shapes = append(layout.Shapes, averageLine(mean, id))
		layout.Annotations = append(layout.Annotations, averageAnnotation(mean, id))
	}

	layout.Height = 800
	return figure.Figure{Data: traces, Layout: layout}, nil
}

func averageLine(mean float64, id figure.AxisID) figure.Shape {
	return figure.Shape{
		Type: "line",
		XRef: "paper",
		YRef: id.YRef(),
		X0:   0,
		X1:   1,
		Y0:   figure.Number(mean),
		Y1:   figure.Number(mean),
	}
}

func averageAnnotation(mean float64, id figure.AxisID) figure.Annotation {
	return figure.Annotation{
		X:          0.5,
		Y:          figure.Number(mean),
		XRef:       "paper",
		YRef:       id.YRef(),
		Text:       fmt.Sprintf("Average: %.2f", mean),
		ShowArrow:  true,
		Align:      "center",
		ArrowHead:  2,
		ArrowSize:  1,
		ArrowWidth: 1,
		ArrowColor: "#636363",
		AX:         20,
		AY:         -25,
	}
}
