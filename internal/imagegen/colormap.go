package imagegen

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultColormap is used when no colormap is requested.
const DefaultColormap = "viridis"

// ErrUnknownColormap is returned for colormap names that are not defined.
var ErrUnknownColormap = errors.New("unknown colormap")

// Colormap is a named colour ramp defined by evenly spaced control points.
type Colormap struct {
	Name   string
	stops  []colorful.Color
	cached []color.NRGBA
}

// colormaps maps names to control points sampled from the matplotlib maps
// of the same name.
var colormaps = map[string][]string{
	"viridis": {"#440154", "#482777", "#3f4a8a", "#31678e", "#26838f", "#1f9d8a", "#6cce5a", "#b6de2b", "#fee825"},
	"magma":   {"#000004", "#1c1044", "#4f127b", "#812581", "#b5367a", "#e55064", "#fb8761", "#fec287", "#fcfdbf"},
	"inferno": {"#000004", "#1b0c41", "#4a0c6b", "#781c6d", "#a52c60", "#cf4446", "#ed6925", "#fb9b06", "#f7d13d", "#fcffa4"},
	"plasma":  {"#0d0887", "#46039f", "#7201a8", "#9c179e", "#bd3786", "#d8576b", "#ed7953", "#fb9f3a", "#fdca26", "#f0f921"},
	"cividis": {"#00224e", "#123570", "#3b496c", "#575d6d", "#707173", "#8a8678", "#a59c74", "#c3b369", "#e1cc55", "#fee838"},
	"jet":     {"#00007f", "#0000ff", "#007fff", "#00ffff", "#7fff7f", "#ffff00", "#ff7f00", "#ff0000", "#7f0000"},
	"seismic": {"#00004c", "#0000ff", "#ffffff", "#ff0000", "#7f0000"},
	"gray":    {"#000000", "#ffffff"},
}

// ColormapNames lists the available colormaps in alphabetical order.
func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupColormap returns the named colormap. Names are case-insensitive and
// an empty name selects DefaultColormap.
func LookupColormap(name string) (*Colormap, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultColormap
	}
	hexes, ok := colormaps[key]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownColormap, name)
	}
	cm := &Colormap{Name: key, stops: make([]colorful.Color, len(hexes))}
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("colormap %s: %w", key, err)
		}
		cm.stops[i] = c
	}
	cm.cached = make([]color.NRGBA, 256)
	for i := range cm.cached {
		cm.cached[i] = cm.interpolate(float64(i) / 255)
	}
	return cm, nil
}

func (cm *Colormap) interpolate(t float64) color.NRGBA {
	t = math.Min(math.Max(t, 0), 1)
	pos := t * float64(len(cm.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(cm.stops)-1 {
		i = len(cm.stops) - 2
	}
	c := cm.stops[i].BlendRgb(cm.stops[i+1], pos-float64(i)).Clamped()
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// At returns the colour at t in [0, 1], quantized to 256 levels.
func (cm *Colormap) At(t float64) color.NRGBA {
	if math.IsNaN(t) {
		return color.NRGBA{}
	}
	t = math.Min(math.Max(t, 0), 1)
	return cm.cached[int(math.Round(t*255))]
}

// Image returns the colormap as a width x 1 strip.
func (cm *Colormap) Image(width int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, 1))
	for x := 0; x < width; x++ {
		t := 0.0
		if width > 1 {
			t = float64(x) / float64(width-1)
		}
		img.SetNRGBA(x, 0, cm.interpolate(t))
	}
	return img
}

// ColormapURI returns the named colormap as a 256x1 PNG data URI.
func ColormapURI(name string) (string, error) {
	cm, err := LookupColormap(name)
	if err != nil {
		return "", err
	}
	return pngDataURI(cm.Image(256))
}
