package surface

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ErrFormat is returned when bytes do not decode as a supported surface
// format.
var ErrFormat = errors.New("surface: unsupported or malformed format")

const (
	irapID    = -996
	irapUndef = 9999900.0
)

// Decode detects the surface format from its content and decodes it.
// Supported formats are Irap classic binary and Irap classic ASCII. The
// grid size in the header must fit in data.
func Decode(data []byte) (*Surface, error) {
	switch {
	case len(data) >= 4 && binary.BigEndian.Uint32(data[:4]) == 32:
		return decodeIrapBinary(bytes.NewReader(data), len(data)/4)
	case bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("-996")):
		// Every value takes at least one digit and one separator.
		return decodeIrapASCII(bytes.NewReader(data), len(data)/2+1)
	default:
		return nil, ErrFormat
	}
}

type irapHeader struct {
	nrow, ncol             int
	xori, yori, xinc, yinc float64
	rotation               float64
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// surface validates the header and allocates the grid. limit caps the node
// count below MaxNodes, e.g. by what the input can hold.
func (h irapHeader) surface(limit int) (*Surface, error) {
	if err := checkSize(h.ncol, h.nrow, min(limit, MaxNodes)); err != nil {
		return nil, err
	}
	if !finite(h.xori, h.yori, h.xinc, h.yinc, h.rotation) {
		return nil, fmt.Errorf("%w: non-finite geometry", ErrFormat)
	}
	// A negative yinc flips the y axis; x must increase.
	if h.xinc <= 0 || h.yinc == 0 {
		return nil, fmt.Errorf("%w: increments %v/%v", ErrFormat, h.xinc, h.yinc)
	}
	s := New(h.xori, h.yori, h.xinc, math.Abs(h.yinc), h.ncol, h.nrow, h.rotation)
	if h.yinc < 0 {
		s.YFlip = -1
	}
	return s, nil
}

// setIrapValue stores the k-th value in file order (x varies fastest).
func setIrapValue(s *Surface, k int, v float64) {
	if v >= irapUndef || math.IsNaN(v) {
		v = math.NaN()
	}
	s.Values.Set(k%s.NCol, k/s.NCol, v)
}

// DecodeIrapASCII reads the Irap classic ASCII grid format.
func DecodeIrapASCII(r io.Reader) (*Surface, error) {
	return decodeIrapASCII(r, MaxNodes)
}

func decodeIrapASCII(r io.Reader, limit int) (*Surface, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	next := func() (float64, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w: unexpected end of data", ErrFormat)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return v, nil
	}

	// -996 nrow xinc yinc / xori xmax yori ymax / ncol rot xrot yrot / 7 zeros
	var head [19]float64
	for i := range head {
		v, err := next()
		if err != nil {
			return nil, err
		}
		head[i] = v
	}
	if head[0] != irapID {
		return nil, fmt.Errorf("%w: missing irap id", ErrFormat)
	}
	for _, v := range []float64{head[1], head[8]} {
		if !(v >= 1 && v <= MaxNodes) || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: grid size %vx%v", ErrFormat, head[8], head[1])
		}
	}
	h := irapHeader{
		nrow:     int(head[1]),
		xinc:     head[2],
		yinc:     head[3],
		xori:     head[4],
		yori:     head[6],
		ncol:     int(head[8]),
		rotation: head[9],
	}
	s, err := h.surface(limit)
	if err != nil {
		return nil, err
	}

	n := s.NCol * s.NRow
	for k := 0; k < n; k++ {
		v, err := next()
		if err != nil {
			return nil, fmt.Errorf("value %d of %d: %w", k, n, err)
		}
		setIrapValue(s, k, v)
	}
	return s, nil
}

// DecodeIrapBinary reads the Irap classic binary grid format: big-endian
// Fortran records with a 32 byte, a 16 byte and a 28 byte header record
// followed by float32 value records.
func DecodeIrapBinary(r io.Reader) (*Surface, error) {
	return decodeIrapBinary(r, MaxNodes)
}

func decodeIrapBinary(r io.Reader, limit int) (*Surface, error) {
	br := bufio.NewReader(r)

	rec1, err := readRecord(br)
	if err != nil {
		return nil, err
	}
	rec2, err := readRecord(br)
	if err != nil {
		return nil, err
	}
	if _, err := readRecord(br); err != nil {
		return nil, err
	}
	if len(rec1) != 32 || len(rec2) != 16 {
		return nil, fmt.Errorf("%w: bad header record sizes %d/%d", ErrFormat, len(rec1), len(rec2))
	}

	i32 := func(b []byte, off int) int { return int(int32(binary.BigEndian.Uint32(b[off:]))) }
	f32 := func(b []byte, off int) float64 {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b[off:])))
	}
	if i32(rec1, 0) != irapID {
		return nil, fmt.Errorf("%w: missing irap id", ErrFormat)
	}
	h := irapHeader{
		nrow:     i32(rec1, 4),
		xori:     f32(rec1, 8),
		yori:     f32(rec1, 16),
		xinc:     f32(rec1, 24),
		yinc:     f32(rec1, 28),
		ncol:     i32(rec2, 0),
		rotation: f32(rec2, 4),
	}
	s, err := h.surface(limit)
	if err != nil {
		return nil, err
	}

	n := s.NCol * s.NRow
	k := 0
	for k < n {
		rec, err := readRecord(br)
		if err != nil {
			return nil, fmt.Errorf("value %d of %d: %w", k, n, err)
		}
		for off := 0; off+4 <= len(rec) && k < n; off += 4 {
			setIrapValue(s, k, f32(rec, off))
			k++
		}
	}
	return s, nil
}

func readRecord(r io.Reader) ([]byte, error) {
	var lead, trail int32
	if err := binary.Read(r, binary.BigEndian, &lead); err != nil {
		return nil, fmt.Errorf("%w: read record marker: %v", ErrFormat, err)
	}
	if lead < 0 || lead > 1<<26 {
		return nil, fmt.Errorf("%w: bad record length %d", ErrFormat, lead)
	}
	buf := make([]byte, lead)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: read record: %v", ErrFormat, err)
	}
	if err := binary.Read(r, binary.BigEndian, &trail); err != nil {
		return nil, fmt.Errorf("%w: read record marker: %v", ErrFormat, err)
	}
	if trail != lead {
		return nil, fmt.Errorf("%w: record markers %d/%d differ", ErrFormat, lead, trail)
	}
	return buf, nil
}

// EncodeIrapASCII writes s in the Irap classic ASCII format.
func EncodeIrapASCII(w io.Writer, s *Surface) error {
	bw := bufio.NewWriter(w)
	yinc := s.YInc * s.yflip()
	xmax := s.XOri + float64(s.NCol-1)*s.XInc
	ymax := s.YOri + float64(s.NRow-1)*yinc
	fmt.Fprintf(bw, "%d %d %f %f\n", irapID, s.NRow, s.XInc, yinc)
	fmt.Fprintf(bw, "%f %f %f %f\n", s.XOri, xmax, s.YOri, ymax)
	fmt.Fprintf(bw, "%d %f %f %f\n", s.NCol, s.Rotation, s.XOri, s.YOri)
	fmt.Fprintln(bw, "0 0 0 0 0 0 0")

	k := 0
	for j := 0; j < s.NRow; j++ {
		for i := 0; i < s.NCol; i++ {
			v := s.Values.At(i, j)
			if math.IsNaN(v) {
				v = irapUndef
			}
			sep := " "
			if k%6 == 5 {
				sep = "\n"
			}
			fmt.Fprintf(bw, "%.4f%s", v, sep)
			k++
		}
	}
	fmt.Fprintln(bw)
	return bw.Flush()
}
