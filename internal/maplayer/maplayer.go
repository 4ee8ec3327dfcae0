// Package maplayer turns surfaces into image layers for a layered map
// component. Every step is memoized: loading by location, derived arrays by
// surface digest and flags, fences by value, and finished layers by their
// full argument list.
package maplayer

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lox/reservoirviz/internal/cache"
	"github.com/lox/reservoirviz/internal/imagegen"
	"github.com/lox/reservoirviz/internal/metrics"
	"github.com/lox/reservoirviz/internal/surface"
)

// Fetcher reads the raw bytes at a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Layer is a map layer description.
type Layer struct {
	Name      string      `json:"name"`
	Checked   bool        `json:"checked"`
	BaseLayer bool        `json:"base_layer"`
	Data      []LayerData `json:"data"`
}

// LayerData is the drawable image of a layer.
type LayerData struct {
	Type             string        `json:"type"`
	URL              string        `json:"url"`
	Colormap         string        `json:"colormap"`
	Bounds           [2][2]float64 `json:"bounds"`
	AllowHillshading bool          `json:"allowHillshading"`
	MinValue         *string       `json:"minvalue"`
	MaxValue         *string       `json:"maxvalue"`
	Unit             string        `json:"unit"`
}

// LayerOptions tune MakeLayer. The zero value renders a layer named
// "surface" with the viridis colormap scaled to the data range.
type LayerOptions struct {
	Name        string
	Min         *float64
	Max         *float64
	Color       string
	Hillshading bool
	Unit        string
}

type Builder struct {
	fetch Fetcher
	cache *cache.Cache
	log   *zap.Logger
}

func NewBuilder(fetch Fetcher, c *cache.Cache, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{fetch: fetch, cache: c, log: log}
}

// Load fetches and decodes the surface at location. Callers share the
// returned value and must not modify it.
func (b *Builder) Load(ctx context.Context, location string) (*surface.Surface, error) {
	return cache.Remember(ctx, b.cache, cache.NewKey("load_surface", location), func(ctx context.Context) (*surface.Surface, error) {
		data, err := b.fetch.Fetch(ctx, location)
		if err != nil {
			metrics.SurfaceLoadsTotal.WithLabelValues("fetch_error").Inc()
			return nil, err
		}
		s, err := surface.Decode(data)
		if err != nil {
			metrics.SurfaceLoadsTotal.WithLabelValues("format_error").Inc()
			return nil, fmt.Errorf("%s: %w", location, err)
		}
		metrics.SurfaceLoadsTotal.WithLabelValues("ok").Inc()
		b.log.Debug("loaded surface", zap.String("location", location),
			zap.Int("ncol", s.NCol), zap.Int("nrow", s.NRow), zap.Float64("rotation", s.Rotation))
		return s, nil
	})
}

// Arrays is the result of Builder.Arrays.
type Arrays struct {
	X, Y, Z *mat.Dense
}

// Arrays returns the node coordinates and values of s. With unrotate the
// arrays come from s.Unrotate(); s itself is never modified. With flip each
// array is transposed and then reversed along its first axis, so row 0 is
// the northernmost row and columns run west to east. Undefined nodes are NaN
// in Z.
func (b *Builder) Arrays(ctx context.Context, s *surface.Surface, unrotate, flip bool) (Arrays, error) {
	key := cache.NewKey("get_surface_arr", s.Digest(), unrotate, flip)
	return cache.Remember(ctx, b.cache, key, func(context.Context) (Arrays, error) {
		src := s
		if unrotate {
			u, err := s.Unrotate()
			if err != nil {
				return Arrays{}, err
			}
			src = u
		}
		x, y, z := src.XYZ()
		if flip {
			x, y, z = Flip(x), Flip(y), Flip(z)
		}
		return Arrays{X: x, Y: y, Z: z}, nil
	})
}

// Flip transposes m and reverses the row order of the result.
func Flip(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(c, r, nil)
	for i := 0; i < c; i++ {
		for j := 0; j < r; j++ {
			out.Set(c-1-i, j, m.At(j, i))
		}
	}
	return out
}

// Fence samples s along fence.
func (b *Builder) Fence(ctx context.Context, fence surface.Fence, s *surface.Surface) ([]float64, error) {
	key := cache.NewKey("get_surface_fence", fence.Digest(), s.Digest())
	return cache.Remember(ctx, b.cache, key, func(context.Context) ([]float64, error) {
		return s.Sample(fence), nil
	})
}

// MakeLayer renders s as a map layer. Bounds are the node extent of the
// unrotated arrays; the value range defaults to the defined minimum and
// maximum of the data.
func (b *Builder) MakeLayer(ctx context.Context, s *surface.Surface, opts LayerOptions) (Layer, error) {
	if opts.Name == "" {
		opts.Name = "surface"
	}
	if opts.Color == "" {
		opts.Color = imagegen.DefaultColormap
	}
	key := cache.NewKey("make_surface_layer", s.Digest(), opts.Name, opts.Min, opts.Max, opts.Color, opts.Hillshading, opts.Unit)
	return cache.RememberJSON(ctx, b.cache, key, func(ctx context.Context) (Layer, error) {
		start := time.Now()
		defer func() { metrics.LayerRenderLatency.Observe(time.Since(start).Seconds()) }()

		arr, err := b.Arrays(ctx, s, true, true)
		if err != nil {
			return Layer{}, err
		}
		colormap, err := imagegen.ColormapURI(opts.Color)
		if err != nil {
			return Layer{}, err
		}
		url, err := imagegen.ArrayToPNG(arr.Z)
		if err != nil {
			return Layer{}, err
		}

		lo, hi := zRange(arr.Z)
		if opts.Min != nil {
			lo = *opts.Min
		}
		if opts.Max != nil {
			hi = *opts.Max
		}

		xs, ys := arr.X.RawMatrix().Data, arr.Y.RawMatrix().Data
		return Layer{
			Name:      opts.Name,
			Checked:   true,
			BaseLayer: true,
			Data: []LayerData{{
				Type:             "image",
				URL:              url,
				Colormap:         colormap,
				Bounds:           [2][2]float64{{floats.Min(xs), floats.Min(ys)}, {floats.Max(xs), floats.Max(ys)}},
				AllowHillshading: opts.Hillshading,
				MinValue:         formatValue(lo),
				MaxValue:         formatValue(hi),
				Unit:             opts.Unit,
			}},
		}, nil
	})
}

// zRange returns the defined minimum and maximum of z, NaN when every
// value is undefined.
func zRange(z *mat.Dense) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		for _, v := range z.RawRowView(i) {
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(lo) || v < lo {
				lo = v
			}
			if math.IsNaN(hi) || v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

func formatValue(v float64) *string {
	if math.IsNaN(v) {
		return nil
	}
	s := fmt.Sprintf("%.2f", v)
	return &s
}
