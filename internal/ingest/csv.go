// Package ingest decodes RFT observation frames, fault polylines, well
// zonation and pressure profiles from CSV and imports them into the store.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/models"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("ingest: missing column")

var rftRequired = []string{
	frame.Well, frame.Ensemble, frame.Date, frame.Zone,
	frame.Obs, frame.Simulated, frame.Diff,
}

// header maps upper-cased, trimmed column names to their index.
type header map[string]int

func readHeader(r *csv.Reader, required []string) (header, error) {
	names, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: %w", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(names))
	for i, n := range names {
		h[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(n, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range required {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return h, nil
}

func (h header) text(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// number parses col, returning NaN for absent or empty cells.
func (h header) number(rec []string, col string) (float64, error) {
	s := h.text(rec, col)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}
	return v, nil
}

// integer parses col, returning def for absent or empty cells. Values written
// as floats ("1.0") are accepted.
func (h header) integer(rec []string, col string, def int) (int, error) {
	s := h.text(rec, col)
	if s == "" {
		return def, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: invalid integer %q", col, s)
	}
	return int(f), nil
}

// ReadRFT decodes an RFT observation frame. WELL, ENSEMBLE, DATE, ZONE,
// OBS, SIMULATED and DIFF are required. ACTIVE defaults to 1 and REAL to 0.
// When the file has no STDDEV column it is derived with ComputeStddev.
// Empty numeric cells and missing optional columns decode as NaN.
func ReadRFT(r io.Reader) ([]models.RFTObservation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr, rftRequired)
	if err != nil {
		return nil, err
	}

	var rows []models.RFTObservation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := h.rft(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	if _, ok := h[frame.Stddev]; !ok {
		ComputeStddev(rows)
	}
	return rows, nil
}

func (h header) rft(rec []string) (models.RFTObservation, error) {
	r := models.RFTObservation{
		Well:     h.text(rec, frame.Well),
		Ensemble: h.text(rec, frame.Ensemble),
		Date:     h.text(rec, frame.Date),
		Zone:     h.text(rec, frame.Zone),
	}
	var err error
	if r.Real, err = h.integer(rec, frame.Real, 0); err != nil {
		return r, err
	}
	if r.Active, err = h.integer(rec, frame.Active, 1); err != nil {
		return r, err
	}
	floats := []struct {
		col string
		dst *float64
	}{
		{frame.Obs, &r.Obs},
		{frame.Simulated, &r.Simulated},
		{frame.Stddev, &r.Stddev},
		{frame.Diff, &r.Diff},
		{frame.East, &r.East},
		{frame.North, &r.North},
		{frame.Year, &r.Year},
		{frame.TVD, &r.TVD},
		{frame.ObsErr, &r.ObsErr},
	}
	for _, f := range floats {
		if *f.dst, err = h.number(rec, f.col); err != nil {
			return r, err
		}
	}
	return r, nil
}

// ComputeStddev sets STDDEV on every row to the sample standard deviation
// of SIMULATED within its (WELL, DATE, ENSEMBLE) group. Groups with fewer
// than two defined values get NaN.
func ComputeStddev(rows []models.RFTObservation) {
	type key struct{ well, date, ensemble string }
	groups := make(map[key][]int)
	var order []key
	for i, r := range rows {
		k := key{r.Well, r.Date, r.Ensemble}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	for _, k := range order {
		idx := groups[k]
		sim := make([]float64, len(idx))
		for j, i := range idx {
			sim[j] = rows[i].Simulated
		}
		sd := frame.NanStdDev(sim)
		for _, i := range idx {
			rows[i].Stddev = sd
		}
	}
}

// ReadFaultLines decodes fault polylines from POLY_ID, X_UTME and Y_UTMN
// columns. Points keep their file order within each polyline.
func ReadFaultLines(r io.Reader) ([]models.FaultPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr, []string{"POLY_ID", "X_UTME", "Y_UTMN"})
	if err != nil {
		return nil, err
	}

	seq := make(map[string]int)
	var points []models.FaultPoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		id := h.text(rec, "POLY_ID")
		x, err := h.number(rec, "X_UTME")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		y, err := h.number(rec, "Y_UTMN")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if id == "" || math.IsNaN(x) || math.IsNaN(y) {
			return nil, fmt.Errorf("line %d: incomplete fault point", line)
		}
		points = append(points, models.FaultPoint{PolyID: id, Seq: seq[id], X: x, Y: y})
		seq[id]++
	}
	return points, nil
}

// ReadFormations decodes well zonation from WELL, ZONE and TOP_TVD columns
// and an optional BASE_TVD. An empty BASE_TVD marks an open-ended zone.
func ReadFormations(r io.Reader) ([]models.Formation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr, []string{frame.Well, frame.Zone, "TOP_TVD"})
	if err != nil {
		return nil, err
	}

	var out []models.Formation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		f := models.Formation{Well: h.text(rec, frame.Well), Zone: h.text(rec, frame.Zone)}
		if f.TopTVD, err = h.number(rec, "TOP_TVD"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if f.BaseTVD, err = h.number(rec, "BASE_TVD"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if f.Well == "" || f.Zone == "" || math.IsNaN(f.TopTVD) {
			return nil, fmt.Errorf("line %d: incomplete formation", line)
		}
		if f.BaseTVD < f.TopTVD {
			return nil, fmt.Errorf("line %d: zone %s base %v above top %v", line, f.Zone, f.BaseTVD, f.TopTVD)
		}
		out = append(out, f)
	}
	return out, nil
}

// ReadPressures decodes pressure points from WELL, DATE, DEPTH and
// PRESSURE columns. Simulated files also need ENSEMBLE; REAL defaults to 0.
// Rows without a depth or pressure are skipped.
func ReadPressures(r io.Reader, simulated bool) ([]models.PressurePoint, error) {
	required := []string{frame.Well, frame.Date, "DEPTH", "PRESSURE"}
	if simulated {
		required = append(required, frame.Ensemble)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr, required)
	if err != nil {
		return nil, err
	}

	var out []models.PressurePoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p := models.PressurePoint{Well: h.text(rec, frame.Well), Date: h.text(rec, frame.Date)}
		if simulated {
			p.Ensemble = h.text(rec, frame.Ensemble)
			if p.Real, err = h.integer(rec, frame.Real, 0); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if p.Depth, err = h.number(rec, "DEPTH"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Pressure, err = h.number(rec, "PRESSURE"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Well == "" || p.Date == "" || (simulated && p.Ensemble == "") {
			return nil, fmt.Errorf("line %d: incomplete pressure point", line)
		}
		if math.IsNaN(p.Depth) || math.IsNaN(p.Pressure) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
