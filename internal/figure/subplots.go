package figure

// Subplots returns a layout with rows stacked single-column subplots
// separated by spacing (a fraction of the plot height). Row 1 is at the
// top and uses AxisID 1. When titles are given, one centered annotation is
// placed above each subplot. Spacing is reduced when the gaps would take
// more than half the plot height.
func Subplots(rows int, spacing float64, titles []string) Layout {
	l := Layout{Shapes: []Shape{}}
	if rows <= 0 {
		return l
	}
	spacing = max(spacing, 0)
	if gaps := float64(rows - 1); spacing*gaps > 0.5 {
		spacing = 0.5 / gaps
	}
	height := (1 - spacing*float64(rows-1)) / float64(rows)
	for r := 0; r < rows; r++ {
		id := AxisID(r + 1)
		top := 1 - float64(r)*(height+spacing)
		bottom := max(top-height, 0)

		x := l.XAxis(id)
		x.Anchor = id.YRef()
		x.Domain = []float64{0, 1}

		y := l.YAxis(id)
		y.Anchor = id.XRef()
		y.Domain = []float64{bottom, top}

		if r < len(titles) {
			l.Annotations = append(l.Annotations, Annotation{
				X:         0.5,
				Y:         Number(top),
				XRef:      "paper",
				YRef:      "paper",
				Text:      titles[r],
				ShowArrow: false,
				XAnchor:   "center",
				YAnchor:   "bottom",
				Font:      &Font{Size: 16},
			})
		}
	}
	return l
}
