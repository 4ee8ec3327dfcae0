// Package figure holds declarative chart descriptions (traces plus a
// layout) that serialize to the JSON shape a plotly front end consumes.
package figure

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Figure is a complete chart: its traces and their layout.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Number is a float that encodes NaN and infinities as null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// Values is a numeric array that encodes NaN and infinities as null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	out := make([]byte, 0, 2+len(v)*8)
	out = append(out, '[')
	for i, f := range v {
		if i > 0 {
			out = append(out, ',')
		}
		b, _ := Number(f).MarshalJSON()
		out = append(out, b...)
	}
	return append(out, ']'), nil
}

// Trace is one data series.
type Trace struct {
	Type        string    `json:"type,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Name        string    `json:"name,omitempty"`
	X           Values    `json:"x"`
	Y           Values    `json:"y"`
	Text        []string  `json:"text,omitempty"`
	CustomData  []string  `json:"customdata,omitempty"`
	HoverText   []string  `json:"hovertext,omitempty"`
	HoverInfo   string    `json:"hoverinfo,omitempty"`
	Fill        string    `json:"fill,omitempty"`
	FillColor   string    `json:"fillcolor,omitempty"`
	ShowLegend  *bool     `json:"showlegend,omitempty"`
	LegendGroup string    `json:"legendgroup,omitempty"`
	Marker      *Marker   `json:"marker,omitempty"`
	Line        *Line     `json:"line,omitempty"`
	ErrorX      *ErrorBar `json:"error_x,omitempty"`
	XAxis       string    `json:"xaxis,omitempty"`
	YAxis       string    `json:"yaxis,omitempty"`
}

// OnAxes places the trace on the subplot identified by id.
func (t *Trace) OnAxes(id AxisID) {
	t.XAxis = id.XRef()
	t.YAxis = id.YRef()
}

// Marker styles scatter points and bars.
//
// Size and Color take Values for per-point settings, or a single Number or
// colour string applied to every point.
type Marker struct {
	Size       any         `json:"size,omitempty"`
	SizeRef    float64     `json:"sizeref,omitempty"`
	SizeMode   string      `json:"sizemode,omitempty"`
	SizeMin    float64     `json:"sizemin,omitempty"`
	Color      any         `json:"color,omitempty"`
	CMin       *Number     `json:"cmin,omitempty"`
	CMax       *Number     `json:"cmax,omitempty"`
	ColorScale []ColorStop `json:"colorscale,omitempty"`
	ColorBar   *ColorBar   `json:"colorbar,omitempty"`
	ShowScale  bool        `json:"showscale"`
}

// ColorStop is one [position, colour] pair of a colour scale.
type ColorStop struct {
	Pos   float64
	Color string
}

func (c ColorStop) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Pos, c.Color})
}

type ColorBar struct {
	X float64 `json:"x"`
}

// Line styles a trace line or shape outline. A nil Width leaves the
// default; Float(0) hides the line.
type Line struct {
	Color string   `json:"color,omitempty"`
	Width *float64 `json:"width,omitempty"`
}

// ErrorBar draws per-point error bars from Array.
type ErrorBar struct {
	Type    string `json:"type"`
	Array   Values `json:"array"`
	Visible bool   `json:"visible"`
}

type Font struct {
	Size  int    `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// Title is a chart or axis title.
type Title struct {
	Text    string   `json:"text"`
	Font    *Font    `json:"font,omitempty"`
	X       *float64 `json:"x,omitempty"`
	XAnchor string   `json:"xanchor,omitempty"`
}

// Shape is a line or rectangle drawn over the plot.
type Shape struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	XRef      string `json:"xref"`
	YRef      string `json:"yref"`
	X0        Number `json:"x0"`
	Y0        Number `json:"y0"`
	X1        Number `json:"x1"`
	Y1        Number `json:"y1"`
	Line      *Line  `json:"line,omitempty"`
	FillColor string `json:"fillcolor,omitempty"`
	Layer     string `json:"layer,omitempty"`
}

// Annotation is a text label, optionally with an arrow.
type Annotation struct {
	X          Number `json:"x"`
	Y          Number `json:"y"`
	XRef       string `json:"xref"`
	YRef       string `json:"yref"`
	Text       string `json:"text"`
	ShowArrow  bool   `json:"showarrow"`
	Align      string `json:"align,omitempty"`
	ArrowHead  int    `json:"arrowhead,omitempty"`
	ArrowSize  int    `json:"arrowsize,omitempty"`
	ArrowWidth int    `json:"arrowwidth,omitempty"`
	ArrowColor string `json:"arrowcolor,omitempty"`
	AX         int    `json:"ax,omitempty"`
	AY         int    `json:"ay,omitempty"`
	XAnchor    string `json:"xanchor,omitempty"`
	YAnchor    string `json:"yanchor,omitempty"`
	Font       *Font  `json:"font,omitempty"`
}

// Axis configures one x or y axis.
type Axis struct {
	Anchor      string    `json:"anchor,omitempty"`
	Domain      []float64 `json:"domain,omitempty"`
	Range       Values    `json:"range,omitempty"`
	Title       *Title    `json:"title,omitempty"`
	Type        string    `json:"type,omitempty"`
	AutoRange   string    `json:"autorange,omitempty"`
	ShowGrid    *bool     `json:"showgrid,omitempty"`
	ZeroLine    *bool     `json:"zeroline,omitempty"`
	Constrain   string    `json:"constrain,omitempty"`
	ScaleAnchor string    `json:"scaleanchor,omitempty"`
}

// AxisID identifies the axis pair of a subplot, counting from 1. The first
// subplot uses the unsuffixed names ("xaxis", "x"); subplot n > 1 uses
// "xaxis<n>" and "x<n>".
type AxisID int

func (a AxisID) suffix() string {
	if a <= 1 {
		return ""
	}
	return strconv.Itoa(int(a))
}

// XName is the layout key of the x axis.
func (a AxisID) XName() string { return "xaxis" + a.suffix() }

// YName is the layout key of the y axis.
func (a AxisID) YName() string { return "yaxis" + a.suffix() }

// XRef is the reference used by traces and shapes for the x axis.
func (a AxisID) XRef() string { return "x" + a.suffix() }

// YRef is the reference used by traces and shapes for the y axis.
func (a AxisID) YRef() string { return "y" + a.suffix() }

type Legend struct {
	ItemSizing  string `json:"itemsizing,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	TraceOrder  string `json:"traceorder,omitempty"`
}

type Margin struct {
	T *int `json:"t,omitempty"`
	L *int `json:"l,omitempty"`
	R *int `json:"r,omitempty"`
	B *int `json:"b,omitempty"`
}

// Layout is the figure layout. Axes are serialized as top-level keys named
// by their AxisID.
type Layout struct {
	Height      int          `json:"height,omitempty"`
	ShowLegend  *bool        `json:"showlegend,omitempty"`
	Title       *Title       `json:"title,omitempty"`
	HoverMode   string       `json:"hovermode,omitempty"`
	Legend      *Legend      `json:"legend,omitempty"`
	Colorway    []string     `json:"colorway,omitempty"`
	Margin      *Margin      `json:"margin,omitempty"`
	Shapes      []Shape      `json:"shapes"`
	Annotations []Annotation `json:"annotations,omitempty"`

	XAxes map[AxisID]*Axis `json:"-"`
	YAxes map[AxisID]*Axis `json:"-"`
}

// XAxis returns the x axis of subplot id, creating it if needed.
func (l *Layout) XAxis(id AxisID) *Axis {
	if l.XAxes == nil {
		l.XAxes = make(map[AxisID]*Axis)
	}
	if l.XAxes[id] == nil {
		l.XAxes[id] = &Axis{}
	}
	return l.XAxes[id]
}

// YAxis returns the y axis of subplot id, creating it if needed.
func (l *Layout) YAxis(id AxisID) *Axis {
	if l.YAxes == nil {
		l.YAxes = make(map[AxisID]*Axis)
	}
	if l.YAxes[id] == nil {
		l.YAxes[id] = &Axis{}
	}
	return l.YAxes[id]
}

func (l Layout) MarshalJSON() ([]byte, error) {
	type plain Layout
	if l.Shapes == nil {
		l.Shapes = []Shape{}
	}
	base, err := json.Marshal(plain(l))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	put := func(name string, ax *Axis) error {
		raw, err := json.Marshal(ax)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fields[name] = raw
		return nil
	}
	for id, ax := range l.XAxes {
		if err := put(id.XName(), ax); err != nil {
			return nil, err
		}
	}
	for id, ax := range l.YAxes {
		if err := put(id.YName(), ax); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

// Bool returns a pointer to b, for optional layout flags.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Num returns a pointer to f as a Number.
func Num(f float64) *Number {
	n := Number(f)
	return &n
}
