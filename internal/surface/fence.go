package surface

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Point is a map location.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Fence is a polyline used to sample a profile through a surface.
type Fence []Point

// MaxFencePoints bounds the length of a densified fence.
const MaxFencePoints = 10000

var ErrFenceTooLong = fmt.Errorf("fence exceeds %d points", MaxFencePoints)

// ParseFence parses "x1,y1;x2,y2;..." into a fence of at least two points.
func ParseFence(s string) (Fence, error) {
	var f Fence
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		xy := strings.Split(part, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("fence point %q: want x,y", part)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("fence point %q: %w", part, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("fence point %q: %w", part, err)
		}
		if !finite(x, y) {
			return nil, fmt.Errorf("fence point %q: not finite", part)
		}
		f = append(f, Point{X: x, Y: y})
	}
	if len(f) < 2 {
		return nil, errors.New("fence needs at least two points")
	}
	return f, nil
}

// Digest returns a content hash of the fence points.
func (f Fence) Digest() uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, p := range f {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.X))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Y))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// HLen returns the cumulative horizontal length at each fence point.
func (f Fence) HLen() []float64 {
	out := make([]float64, len(f))
	for i := 1; i < len(f); i++ {
		out[i] = out[i-1] + math.Hypot(f[i].X-f[i-1].X, f[i].Y-f[i-1].Y)
	}
	return out
}

// Densify returns a fence with points inserted so that no segment is
// longer than step. The original vertices are kept. It fails with
// ErrFenceTooLong when the result would exceed MaxFencePoints.
func (f Fence) Densify(step float64) (Fence, error) {
	if step <= 0 || len(f) < 2 {
		return append(Fence(nil), f...), nil
	}
	steps := make([]int, len(f))
	total := 1.0
	for i := 1; i < len(f); i++ {
		n := math.Ceil(math.Hypot(f[i].X-f[i-1].X, f[i].Y-f[i-1].Y) / step)
		total += math.Max(n, 1)
		if !(total <= MaxFencePoints) {
			return nil, ErrFenceTooLong
		}
		steps[i] = max(int(n), 1)
	}

	out := make(Fence, 0, int(total))
	out = append(out, f[0])
	for i := 1; i < len(f); i++ {
		a, b := f[i-1], f[i]
		n := steps[i]
		for k := 1; k <= n; k++ {
			t := float64(k) / float64(n)
			out = append(out, Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
		}
	}
	return out, nil
}

// Sample returns the surface value at each fence point, NaN where the
// surface is undefined.
func (s *Surface) Sample(f Fence) []float64 {
	out := make([]float64, len(f))
	for i, p := range f {
		out[i] = s.ValueAt(p.X, p.Y)
	}
	return out
}
