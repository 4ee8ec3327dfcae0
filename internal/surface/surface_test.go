package surface

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

const asciiGrid = `-996 2 10.000000 20.000000
100.000000 120.000000 200.000000 220.000000
3 0.000000 100.000000 200.000000
0 0 0 0 0 0 0
1.0 2.0 3.0
4.0 9999900.0000 6.0
`

func TestDecodeIrapASCII(t *testing.T) {
	s, err := Decode([]byte(asciiGrid))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.NCol != 3 || s.NRow != 2 {
		t.Fatalf("size = %dx%d, want 3x2", s.NCol, s.NRow)
	}
	if s.XMin() != 100 || s.XMax() != 120 || s.YMin() != 200 || s.YMax() != 220 {
		t.Errorf("extent = %v %v %v %v", s.XMin(), s.XMax(), s.YMin(), s.YMax())
	}

	want := [][]float64{{1, 4}, {2, math.NaN()}, {3, 6}}
	for i := range want {
		for j := range want[i] {
			got := s.Values.At(i, j)
			if math.IsNaN(want[i][j]) {
				if !math.IsNaN(got) {
					t.Errorf("value(%d,%d) = %v, want NaN", i, j, got)
				}
				continue
			}
			if got != want[i][j] {
				t.Errorf("value(%d,%d) = %v, want %v", i, j, got, want[i][j])
			}
		}
	}
}

func irapBinary(t *testing.T, ncol, nrow int, xori, yori, xinc, yinc float32, values []float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	record := func(fields ...any) {
		var body bytes.Buffer
		for _, f := range fields {
			if err := binary.Write(&body, binary.BigEndian, f); err != nil {
				t.Fatal(err)
			}
		}
		binary.Write(&buf, binary.BigEndian, int32(body.Len()))
		buf.Write(body.Bytes())
		binary.Write(&buf, binary.BigEndian, int32(body.Len()))
	}
	xmax := xori + float32(ncol-1)*xinc
	ymax := yori + float32(nrow-1)*yinc
	record(int32(-996), int32(nrow), xori, xmax, yori, ymax, xinc, yinc)
	record(int32(ncol), float32(0), xori, yori)
	record(int32(0), int32(0), int32(0), int32(0), int32(0), int32(0), int32(0))
	// Split values over two records like real exports do.
	half := len(values) / 2
	record(values[:half])
	record(values[half:])
	return buf.Bytes()
}

func TestDecodeIrapBinary(t *testing.T) {
	data := irapBinary(t, 2, 2, 0, 0, 25, 50, []float32{1, 2, 3, 9999900})
	s, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.NCol != 2 || s.NRow != 2 || s.XInc != 25 || s.YInc != 50 {
		t.Fatalf("geometry = %+v", s)
	}
	if got := s.Values.At(1, 0); got != 2 {
		t.Errorf("value(1,0) = %v, want 2", got)
	}
	if got := s.Values.At(0, 1); got != 3 {
		t.Errorf("value(0,1) = %v, want 3", got)
	}
	if got := s.Values.At(1, 1); !math.IsNaN(got) {
		t.Errorf("undefined node = %v, want NaN", got)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"text", "hello world"},
		{"truncated ascii", "-996 2 10 20\n100 120"},
		{"zero size", "-996 0 10 20\n0 0 0 0\n0 0 0 0\n0 0 0 0 0 0 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrFormat) {
				t.Errorf("Decode(%q) err = %v, want ErrFormat", tt.data, err)
			}
		})
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	header := func(nrow, xinc, yinc, ncol, rot string) string {
		return "-996 " + nrow + " " + xinc + " " + yinc + "\n0 10 0 10\n" +
			ncol + " " + rot + " 0 0\n0 0 0 0 0 0 0\n1 2 3 4\n"
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"huge nrow", []byte(header("3000000000", "10", "10", "2", "0"))},
		{"huge ncol", []byte(header("2", "10", "10", "1e30", "0"))},
		{"size beyond data", []byte(header("100", "10", "10", "100", "0"))},
		{"fractional size", []byte(header("2.5", "10", "10", "2", "0"))},
		{"negative xinc", []byte(header("2", "-10", "10", "2", "30"))},
		{"zero yinc", []byte(header("2", "10", "0", "2", "0"))},
		{"nan rotation", []byte(header("2", "10", "10", "2", "nan"))},
		{"binary size beyond data", irapBinary(t, 40000, 40000, 0, 0, 1, 1, []float32{1, 2})},
		{"binary negative xinc", irapBinary(t, 2, 1, 0, 0, -1, 1, []float32{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("err = %v, want ErrFormat", err)
			}
		})
	}
}

func TestDecodeAcceptsFlippedY(t *testing.T) {
	data := "-996 2 10 -10\n0 10 0 10\n2 30 0 0\n0 0 0 0 0 0 0\n1 2 3 4\n"
	s, err := Decode([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if s.YFlip != -1 || s.YInc != 10 {
		t.Fatalf("yflip = %d, yinc = %v", s.YFlip, s.YInc)
	}
	if _, err := s.Unrotate(); err != nil {
		t.Errorf("Unrotate: %v", err)
	}
}

func TestUnrotateRejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name string
		s    *Surface
	}{
		{"negative xinc", &Surface{XInc: -10, YInc: 10, NCol: 2, NRow: 2, Rotation: 30, YFlip: 1}},
		{"zero yinc", &Surface{XInc: 10, YInc: 0, NCol: 2, NRow: 2, Rotation: 30, YFlip: 1}},
		// A long thin strip at 45 degrees covers a bounding box of ~n*n/2 nodes.
		{"covering grid too large", &Surface{XInc: 1, YInc: 1, NCol: 1 << 20, NRow: 1, Rotation: 45, YFlip: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.s.Unrotate()
			if !errors.Is(err, ErrFormat) {
				t.Errorf("err = %v, want ErrFormat", err)
			}
		})
	}
}

func TestEncodeIrapASCIIDecodes(t *testing.T) {
	src, err := Decode([]byte(asciiGrid))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := EncodeIrapASCII(&buf, src); err != nil {
		t.Fatalf("EncodeIrapASCII: %v", err)
	}
	got, err := DecodeIrapASCII(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("DecodeIrapASCII: %v", err)
	}
	if got.Digest() != src.Digest() {
		t.Error("digest changed after encode/decode")
	}
}

func rotatedSurface() *Surface {
	s := New(0, 0, 10, 10, 3, 2, 90)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			s.Values.Set(i, j, float64(10*i+j))
		}
	}
	return s
}

func TestUnrotateLeavesReceiverUntouched(t *testing.T) {
	s := rotatedSurface()
	before := s.Digest()

	u, err := s.Unrotate()
	if err != nil {
		t.Fatal(err)
	}

	if s.Rotation != 90 || s.NCol != 3 || s.NRow != 2 {
		t.Errorf("receiver geometry changed: %+v", s)
	}
	if s.Digest() != before {
		t.Error("receiver values changed")
	}
	if u.Rotation != 0 || !u.IsAxisAligned() {
		t.Errorf("unrotated rotation = %v", u.Rotation)
	}
}

func TestUnrotateResamplesFootprint(t *testing.T) {
	s := rotatedSurface()
	u, err := s.Unrotate()
	if err != nil {
		t.Fatal(err)
	}

	if u.NCol != 2 || u.NRow != 3 {
		t.Fatalf("unrotated size = %dx%d, want 2x3", u.NCol, u.NRow)
	}
	if math.Abs(u.XMin()-s.XMin()) > 1e-9 || math.Abs(u.YMax()-s.YMax()) > 1e-9 {
		t.Errorf("extent changed: %v..%v / %v..%v", u.XMin(), u.XMax(), u.YMin(), u.YMax())
	}
	for i := 0; i < u.NCol; i++ {
		for j := 0; j < u.NRow; j++ {
			x, y := u.Node(i, j)
			want := s.ValueAt(x, y)
			if got := u.Values.At(i, j); math.Abs(got-want) > 1e-9 {
				t.Errorf("node (%d,%d) at (%v,%v) = %v, want %v", i, j, x, y, got, want)
			}
		}
	}
	// (x=0, y=20) is original node (2, 0).
	if got := u.Values.At(1, 2); math.Abs(got-20) > 1e-9 {
		t.Errorf("u(1,2) = %v, want 20", got)
	}
}

func TestValueAt(t *testing.T) {
	s, err := Decode([]byte(asciiGrid))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		x, y float64
		want float64
	}{
		{"node", 100, 200, 1},
		{"between nodes", 105, 200, 1.5},
		{"exact node beside undefined", 100, 220, 4},
		{"touches undefined", 115, 210, math.NaN()},
		{"outside", 90, 200, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ValueAt(tt.x, tt.y)
			if math.IsNaN(tt.want) {
				if !math.IsNaN(got) {
					t.Errorf("ValueAt(%v,%v) = %v, want NaN", tt.x, tt.y, got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ValueAt(%v,%v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestDigestTracksValues(t *testing.T) {
	a := rotatedSurface()
	b := rotatedSurface()
	if a.Digest() != b.Digest() {
		t.Fatal("equal surfaces have different digests")
	}
	b.Values.Set(0, 0, 99)
	if a.Digest() == b.Digest() {
		t.Error("digest did not change with values")
	}
}
