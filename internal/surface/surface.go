// Package surface models regular 2D property grids (depth maps, thickness
// maps, ...) laid out over a possibly rotated areal footprint.
//
// A Surface is a value: operations that change the geometry, such as
// Unrotate, return a new Surface and leave the receiver untouched. This lets
// callers key memoized results on Digest without worrying about one caller
// transforming a grid that another caller is still reading.
package surface

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"
)

// MaxNodes bounds ncol*nrow of any decoded or resampled grid.
const MaxNodes = 1 << 28

// checkSize reports whether an ncol x nrow grid is non-empty and holds at
// most limit nodes.
func checkSize(ncol, nrow, limit int) error {
	if ncol <= 0 || nrow <= 0 {
		return fmt.Errorf("%w: grid size %dx%d", ErrFormat, ncol, nrow)
	}
	if ncol > limit/nrow {
		return fmt.Errorf("%w: grid size %dx%d exceeds %d nodes", ErrFormat, ncol, nrow, limit)
	}
	return nil
}

type Surface struct {
	XOri     float64
	YOri     float64
	XInc     float64
	YInc     float64
	NCol     int
	NRow     int
	Rotation float64 // degrees, counter-clockwise around (XOri, YOri)
	YFlip    int     // 1 or -1

	// Values holds NCol x NRow node values. Undefined nodes are NaN.
	Values *mat.Dense
}

// New returns a surface with the given geometry and all nodes undefined.
func New(xori, yori, xinc, yinc float64, ncol, nrow int, rotation float64) *Surface {
	data := make([]float64, ncol*nrow)
	for i := range data {
		data[i] = math.NaN()
	}
	return &Surface{
		XOri:     xori,
		YOri:     yori,
		XInc:     xinc,
		YInc:     yinc,
		NCol:     ncol,
		NRow:     nrow,
		Rotation: rotation,
		YFlip:    1,
		Values:   mat.NewDense(ncol, nrow, data),
	}
}

func (s *Surface) yflip() float64 {
	if s.YFlip < 0 {
		return -1
	}
	return 1
}

// Node returns the map coordinates of node (i, j).
func (s *Surface) Node(i, j int) (x, y float64) {
	sin, cos := math.Sincos(s.Rotation * math.Pi / 180)
	di := float64(i) * s.XInc
	dj := float64(j) * s.YInc * s.yflip()
	return s.XOri + di*cos - dj*sin, s.YOri + di*sin + dj*cos
}

func (s *Surface) corners() [4][2]float64 {
	var out [4][2]float64
	for k, ij := range [4][2]int{{0, 0}, {s.NCol - 1, 0}, {0, s.NRow - 1}, {s.NCol - 1, s.NRow - 1}} {
		out[k][0], out[k][1] = s.Node(ij[0], ij[1])
	}
	return out
}

func (s *Surface) XMin() float64 {
	v := math.Inf(1)
	for _, c := range s.corners() {
		v = math.Min(v, c[0])
	}
	return v
}

func (s *Surface) XMax() float64 {
	v := math.Inf(-1)
	for _, c := range s.corners() {
		v = math.Max(v, c[0])
	}
	return v
}

func (s *Surface) YMin() float64 {
	v := math.Inf(1)
	for _, c := range s.corners() {
		v = math.Min(v, c[1])
	}
	return v
}

func (s *Surface) YMax() float64 {
	v := math.Inf(-1)
	for _, c := range s.corners() {
		v = math.Max(v, c[1])
	}
	return v
}

// IsAxisAligned reports whether the grid axes already follow map east and
// north.
func (s *Surface) IsAxisAligned() bool {
	return math.Mod(s.Rotation, 360) == 0 && s.YFlip >= 0
}

// Clone returns a deep copy.
func (s *Surface) Clone() *Surface {
	c := *s
	c.Values = mat.DenseCopyOf(s.Values)
	return &c
}

// XYZ returns the node x and y coordinates and the node values, each as an
// NCol x NRow matrix. Z is a copy; undefined nodes are NaN.
func (s *Surface) XYZ() (x, y, z *mat.Dense) {
	x = mat.NewDense(s.NCol, s.NRow, nil)
	y = mat.NewDense(s.NCol, s.NRow, nil)
	for i := 0; i < s.NCol; i++ {
		for j := 0; j < s.NRow; j++ {
			nx, ny := s.Node(i, j)
			x.Set(i, j, nx)
			y.Set(i, j, ny)
		}
	}
	return x, y, mat.DenseCopyOf(s.Values)
}

// ValueAt samples the surface at map coordinates (x, y) with bilinear
// interpolation. It returns NaN outside the grid or when any of the
// surrounding nodes is undefined.
func (s *Surface) ValueAt(x, y float64) float64 {
	sin, cos := math.Sincos(s.Rotation * math.Pi / 180)
	dx, dy := x-s.XOri, y-s.YOri
	fi := (dx*cos + dy*sin) / s.XInc
	fj := (-dx*sin + dy*cos) * s.yflip() / s.YInc

	const eps = 1e-9
	if fi < -eps || fj < -eps || fi > float64(s.NCol-1)+eps || fj > float64(s.NRow-1)+eps {
		return math.NaN()
	}
	fi = snap(math.Min(math.Max(fi, 0), float64(s.NCol-1)), eps)
	fj = snap(math.Min(math.Max(fj, 0), float64(s.NRow-1)), eps)

	i0, j0 := int(math.Floor(fi)), int(math.Floor(fj))
	i1, j1 := min(i0+1, s.NCol-1), min(j0+1, s.NRow-1)
	ti, tj := fi-float64(i0), fj-float64(j0)

	var v float64
	for _, c := range [4]struct {
		w    float64
		i, j int
	}{
		{(1 - ti) * (1 - tj), i0, j0},
		{ti * (1 - tj), i1, j0},
		{(1 - ti) * tj, i0, j1},
		{ti * tj, i1, j1},
	} {
		// Zero-weight nodes must not leak NaN into an exact hit.
		if c.w == 0 {
			continue
		}
		v += c.w * s.Values.At(c.i, c.j)
	}
	return v
}

// snap rounds f to the nearest integer when it is within eps of it.
func snap(f, eps float64) float64 {
	if r := math.Round(f); math.Abs(f-r) < eps {
		return r
	}
	return f
}

// Unrotate resamples the surface onto an axis-aligned grid with the same
// increments that covers the original footprint. The receiver is not
// modified. It fails when the increments are not positive or the covering
// grid would exceed MaxNodes.
func (s *Surface) Unrotate() (*Surface, error) {
	if s.IsAxisAligned() {
		return s.Clone(), nil
	}
	if !(s.XInc > 0) || !(s.YInc > 0) {
		return nil, fmt.Errorf("%w: increments %v/%v", ErrFormat, s.XInc, s.YInc)
	}
	xmin, xmax := s.XMin(), s.XMax()
	ymin, ymax := s.YMin(), s.YMax()
	fcol := math.Round((xmax-xmin)/s.XInc) + 1
	frow := math.Round((ymax-ymin)/s.YInc) + 1
	if !(fcol >= 1 && frow >= 1) || fcol*frow > MaxNodes {
		return nil, fmt.Errorf("%w: unrotated grid %vx%v exceeds %d nodes", ErrFormat, fcol, frow, MaxNodes)
	}
	ncol, nrow := int(fcol), int(frow)

	out := New(xmin, ymin, s.XInc, s.YInc, ncol, nrow, 0)
	for i := 0; i < ncol; i++ {
		for j := 0; j < nrow; j++ {
			x, y := out.Node(i, j)
			out.Values.Set(i, j, s.ValueAt(x, y))
		}
	}
	return out, nil
}

// Digest returns a content hash over geometry and values. Two surfaces with
// equal digests render identically.
func (s *Surface) Digest() uint64 {
	h := xxhash.New()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	put(s.XOri)
	put(s.YOri)
	put(s.XInc)
	put(s.YInc)
	put(float64(s.NCol))
	put(float64(s.NRow))
	put(s.Rotation)
	put(s.yflip())
	for i := 0; i < s.NCol; i++ {
		for _, v := range s.Values.RawRowView(i) {
			if math.IsNaN(v) {
				v = math.NaN() // canonical NaN bits
			}
			put(v)
		}
	}
	return h.Sum64()
}
