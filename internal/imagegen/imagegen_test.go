package imagegen

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func decodeDataURI(t *testing.T, uri string) []byte {
	t.Helper()
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("uri has no png prefix: %.40s", uri)
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestArrayToPNG(t *testing.T) {
	z := mat.NewDense(2, 3, []float64{
		0, 5, 10,
		math.NaN(), 10, 0,
	})
	uri, err := ArrayToPNG(z)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(decodeDataURI(t, uri)))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("size = %v, want 3x2", b)
	}

	tests := []struct {
		x, y      int
		level, al uint32
	}{
		{0, 0, 0, 0xffff},
		{2, 0, 0xffff, 0xffff},
		{0, 1, 0, 0},
	}
	for _, tt := range tests {
		r, _, _, a := img.At(tt.x, tt.y).RGBA()
		if a != tt.al {
			t.Errorf("alpha(%d,%d) = %d, want %d", tt.x, tt.y, a, tt.al)
		}
		if a != 0 && r != tt.level {
			t.Errorf("level(%d,%d) = %d, want %d", tt.x, tt.y, r, tt.level)
		}
	}
}

func TestArrayImageConstant(t *testing.T) {
	img := ArrayImage(mat.NewDense(1, 2, []float64{4, 4}))
	if got := img.NRGBAAt(1, 0); got.R != 128 || got.A != 255 {
		t.Errorf("constant pixel = %v, want mid grey", got)
	}
}

func TestLookupColormap(t *testing.T) {
	cm, err := LookupColormap("")
	if err != nil {
		t.Fatal(err)
	}
	if cm.Name != DefaultColormap {
		t.Errorf("default colormap = %q", cm.Name)
	}

	gray, err := LookupColormap("Gray")
	if err != nil {
		t.Fatal(err)
	}
	if c := gray.At(0); c.R != 0 || c.A != 255 {
		t.Errorf("gray(0) = %v", c)
	}
	if c := gray.At(1); c.R != 255 {
		t.Errorf("gray(1) = %v", c)
	}
	if c := gray.At(0.5); c.R < 126 || c.R > 129 {
		t.Errorf("gray(0.5) = %v", c)
	}
	if c := gray.At(math.NaN()); c.A != 0 {
		t.Errorf("gray(NaN) = %v, want transparent", c)
	}

	if _, err := LookupColormap("rainbow-unicorn"); err == nil {
		t.Error("expected error for unknown colormap")
	}
}

func TestColormapEndpoints(t *testing.T) {
	for _, name := range ColormapNames() {
		cm, err := LookupColormap(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		first := colormaps[name][0]
		img := cm.Image(256)
		got := img.NRGBAAt(0, 0)
		r, g, b := hexRGB(t, first)
		if got.R != r || got.G != g || got.B != b {
			t.Errorf("%s start = %v, want %s", name, got, first)
		}
	}
}

func hexRGB(t *testing.T, h string) (uint8, uint8, uint8) {
	t.Helper()
	var r, g, b uint8
	if _, err := fmt.Sscanf(h, "#%02x%02x%02x", &r, &g, &b); err != nil {
		t.Fatalf("parse %s: %v", h, err)
	}
	return r, g, b
}

func TestColormapURI(t *testing.T) {
	uri, err := ColormapURI("viridis")
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(decodeDataURI(t, uri)))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 1 {
		t.Errorf("colormap image = %v, want 256x1", b)
	}
}

func TestLegend(t *testing.T) {
	cm, _ := LookupColormap("viridis")
	data, err := Legend(cm, 1500, 2500.5, "m")
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != LegendWidth || b.Dy() != LegendHeight {
		t.Errorf("legend size = %v", b)
	}
}

func TestScatterPNG(t *testing.T) {
	data, err := ScatterPNG([]ScatterSeries{
		{Name: "iter-0", X: []float64{100, 200, math.NaN()}, Y: []float64{110, 190, 5}},
	}, PreviewOptions{Min: 50, Max: 250, Diagonal: true, Width: 320, Height: 240})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("preview size = %v", b)
	}

	if _, err := ScatterPNG(nil, PreviewOptions{}); err == nil {
		t.Error("expected error for empty chart")
	}
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Hour, nil)

	if _, ok := c.Get("legend/viridis"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	renders := 0
	render := func() ([]byte, error) {
		renders++
		return []byte("png"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := c.GetOrRender("legend/viridis", render)
		if err != nil || string(got) != "png" {
			t.Fatalf("GetOrRender = %q, %v", got, err)
		}
	}
	if renders != 1 {
		t.Errorf("renders = %d, want 1", renders)
	}
	if p := c.path("../../etc/passwd"); filepath.Dir(p) != dir {
		t.Errorf("path escaped cache dir: %s", p)
	}
}
