package maplayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/lox/reservoirviz/internal/cache"
	"github.com/lox/reservoirviz/internal/surface"
)

type fakeFetcher struct {
	data  map[string][]byte
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	f.calls.Add(1)
	b, ok := f.data[location]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func testSurface(rotation float64) *surface.Surface {
	s := surface.New(1000, 2000, 10, 10, 3, 2, rotation)
	vals := []float64{1, 4, 2, math.NaN(), 3, 6}
	for k, v := range vals {
		s.Values.Set(k/2, k%2, v)
	}
	return s
}

func newBuilder(t *testing.T, f Fetcher) *Builder {
	t.Helper()
	return NewBuilder(f, cache.New(64, time.Hour, nil), nil)
}

func TestLoadMemoized(t *testing.T) {
	var buf bytes.Buffer
	if err := surface.EncodeIrapASCII(&buf, testSurface(0)); err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{data: map[string][]byte{"top.gri": buf.Bytes()}}
	b := newBuilder(t, f)
	ctx := context.Background()

	s1, err := b.Load(ctx, "top.gri")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := b.Load(ctx, "top.gri")
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Error("second load returned a different surface")
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if s1.NCol != 3 || s1.NRow != 2 {
		t.Errorf("size = %dx%d", s1.NCol, s1.NRow)
	}

	if _, err := b.Load(ctx, "missing.gri"); err == nil {
		t.Error("expected error for missing location")
	}
}

func TestLoadBadFormat(t *testing.T) {
	f := &fakeFetcher{data: map[string][]byte{"junk": []byte("hello")}}
	_, err := newBuilder(t, f).Load(context.Background(), "junk")
	if !errors.Is(err, surface.ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestFlip(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	got := Flip(m)
	want := mat.NewDense(2, 3, []float64{
		2, 4, 6,
		1, 3, 5,
	})
	if !mat.Equal(got, want) {
		t.Errorf("Flip =\n%v\nwant\n%v", mat.Formatted(got), mat.Formatted(want))
	}
}

func TestArrays(t *testing.T) {
	s := testSurface(0)
	b := newBuilder(t, nil)
	ctx := context.Background()

	arr, err := b.Arrays(ctx, s, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := arr.Z.Dims(); r != 3 || c != 2 {
		t.Fatalf("z dims = %dx%d, want 3x2", r, c)
	}

	flipped, err := b.Arrays(ctx, s, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := flipped.Z.Dims(); r != 2 || c != 3 {
		t.Fatalf("flipped dims = %dx%d, want 2x3", r, c)
	}
	// Row 0 is the northern row of the grid.
	if v := flipped.Z.At(0, 0); v != 4 {
		t.Errorf("flipped z(0,0) = %v, want 4", v)
	}
	if v := flipped.Z.At(0, 1); !math.IsNaN(v) {
		t.Errorf("flipped z(0,1) = %v, want NaN", v)
	}
	if v := flipped.Y.At(0, 0); v != 2010 {
		t.Errorf("flipped y(0,0) = %v, want 2010", v)
	}
}

func TestArraysDoesNotMutate(t *testing.T) {
	s := testSurface(30)
	before := s.Digest()
	b := newBuilder(t, nil)

	if _, err := b.Arrays(context.Background(), s, true, true); err != nil {
		t.Fatal(err)
	}
	if s.Rotation != 30 || s.Digest() != before {
		t.Error("Arrays modified its input surface")
	}
}

func TestFence(t *testing.T) {
	s := testSurface(0)
	b := newBuilder(t, nil)
	fence := surface.Fence{{X: 1000, Y: 2000}, {X: 1020, Y: 2000}}

	got, err := b.Fence(context.Background(), fence, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("fence values = %v, want [1 3]", got)
	}
}

func TestMakeLayer(t *testing.T) {
	s := testSurface(0)
	b := newBuilder(t, nil)

	layer, err := b.MakeLayer(context.Background(), s, LayerOptions{Unit: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if layer.Name != "surface" || !layer.Checked || !layer.BaseLayer {
		t.Errorf("layer header = %+v", layer)
	}
	if len(layer.Data) != 1 {
		t.Fatalf("data = %d entries", len(layer.Data))
	}
	d := layer.Data[0]
	if d.Type != "image" || d.Unit != "m" {
		t.Errorf("type/unit = %q/%q", d.Type, d.Unit)
	}
	want := [2][2]float64{{1000, 2000}, {1020, 2010}}
	if d.Bounds != want {
		t.Errorf("bounds = %v, want %v", d.Bounds, want)
	}
	if d.MinValue == nil || *d.MinValue != "1.00" || d.MaxValue == nil || *d.MaxValue != "6.00" {
		t.Errorf("min/max = %v/%v", d.MinValue, d.MaxValue)
	}

	raw, err := json.Marshal(layer)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"name", "checked", "base_layer", "data"} {
		if _, ok := generic[k]; !ok {
			t.Errorf("layer json missing %q", k)
		}
	}
}

func TestMakeLayerExplicitRange(t *testing.T) {
	lo, hi := -5.0, 12.5
	layer, err := newBuilder(t, nil).MakeLayer(context.Background(), testSurface(0), LayerOptions{
		Name:  "top",
		Min:   &lo,
		Max:   &hi,
		Color: "magma",
	})
	if err != nil {
		t.Fatal(err)
	}
	d := layer.Data[0]
	if *d.MinValue != "-5.00" || *d.MaxValue != "12.50" {
		t.Errorf("min/max = %s/%s", *d.MinValue, *d.MaxValue)
	}
}

func TestMakeLayerRotatedBounds(t *testing.T) {
	s := testSurface(90)
	layer, err := newBuilder(t, nil).MakeLayer(context.Background(), s, LayerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.Unrotate()
	if err != nil {
		t.Fatal(err)
	}
	want := [2][2]float64{{u.XMin(), u.YMin()}, {u.XMax(), u.YMax()}}
	if layer.Data[0].Bounds != want {
		t.Errorf("bounds = %v, want %v", layer.Data[0].Bounds, want)
	}
	if s.Rotation != 90 {
		t.Error("MakeLayer modified its input surface")
	}
}

func TestMakeLayerBadGeometry(t *testing.T) {
	s := surface.New(0, 0, -10, 10, 2, 2, 30)
	_, err := newBuilder(t, nil).MakeLayer(context.Background(), s, LayerOptions{})
	if !errors.Is(err, surface.ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestMakeLayerUnknownColormap(t *testing.T) {
	_, err := newBuilder(t, nil).MakeLayer(context.Background(), testSurface(0), LayerOptions{Color: "nope"})
	if err == nil {
		t.Error("expected error for unknown colormap")
	}
}

func TestMakeLayerAllUndefined(t *testing.T) {
	s := surface.New(0, 0, 1, 1, 2, 2, 0)
	layer, err := newBuilder(t, nil).MakeLayer(context.Background(), s, LayerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if layer.Data[0].MinValue != nil || layer.Data[0].MaxValue != nil {
		t.Error("expected nil min/max for an undefined surface")
	}
}
