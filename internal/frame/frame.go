// Package frame implements the small set of tabular operations the RFT
// figures need over observation rows: filtering, grouping with means and
// sums, and NaN-aware statistics.
package frame

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lox/reservoirviz/internal/models"
)

// ErrUnknownColumn is returned when a column name is not part of the frame.
var ErrUnknownColumn = errors.New("frame: unknown column")

// Column names.
const (
	Well      = "WELL"
	Ensemble  = "ENSEMBLE"
	Real      = "REAL"
	Date      = "DATE"
	Zone      = "ZONE"
	Obs       = "OBS"
	Simulated = "SIMULATED"
	Stddev    = "STDDEV"
	Diff      = "DIFF"
	Active    = "ACTIVE"
	East      = "EAST"
	North     = "NORTH"
	Year      = "YEAR"
	TVD       = "TVD"
	ObsErr    = "OBS_ERR"
)

// Frame is an ordered set of observation rows.
type Frame []models.RFTObservation

type numericColumn struct {
	get func(*models.RFTObservation) float64
	set func(*models.RFTObservation, float64)
}

var numericColumns = map[string]numericColumn{
	Obs:       {func(r *models.RFTObservation) float64 { return r.Obs }, func(r *models.RFTObservation, v float64) { r.Obs = v }},
	Simulated: {func(r *models.RFTObservation) float64 { return r.Simulated }, func(r *models.RFTObservation, v float64) { r.Simulated = v }},
	Stddev:    {func(r *models.RFTObservation) float64 { return r.Stddev }, func(r *models.RFTObservation, v float64) { r.Stddev = v }},
	Diff:      {func(r *models.RFTObservation) float64 { return r.Diff }, func(r *models.RFTObservation, v float64) { r.Diff = v }},
	East:      {func(r *models.RFTObservation) float64 { return r.East }, func(r *models.RFTObservation, v float64) { r.East = v }},
	North:     {func(r *models.RFTObservation) float64 { return r.North }, func(r *models.RFTObservation, v float64) { r.North = v }},
	Year:      {func(r *models.RFTObservation) float64 { return r.Year }, func(r *models.RFTObservation, v float64) { r.Year = v }},
	TVD:       {func(r *models.RFTObservation) float64 { return r.TVD }, func(r *models.RFTObservation, v float64) { r.TVD = v }},
	ObsErr:    {func(r *models.RFTObservation) float64 { return r.ObsErr }, func(r *models.RFTObservation, v float64) { r.ObsErr = v }},
	Active:    {func(r *models.RFTObservation) float64 { return float64(r.Active) }, func(r *models.RFTObservation, v float64) { r.Active = roundInt(v) }},
	Real:      {func(r *models.RFTObservation) float64 { return float64(r.Real) }, func(r *models.RFTObservation, v float64) { r.Real = roundInt(v) }},
}

type keyColumn struct {
	get func(*models.RFTObservation) string
	set func(*models.RFTObservation, string)
}

var keyColumns = map[string]keyColumn{
	Well:     {func(r *models.RFTObservation) string { return r.Well }, func(r *models.RFTObservation, v string) { r.Well = v }},
	Ensemble: {func(r *models.RFTObservation) string { return r.Ensemble }, func(r *models.RFTObservation, v string) { r.Ensemble = v }},
	Date:     {func(r *models.RFTObservation) string { return r.Date }, func(r *models.RFTObservation, v string) { r.Date = v }},
	Zone:     {func(r *models.RFTObservation) string { return r.Zone }, func(r *models.RFTObservation, v string) { r.Zone = v }},
	Real: {
		func(r *models.RFTObservation) string { return strconv.Itoa(r.Real) },
		func(r *models.RFTObservation, v string) { r.Real, _ = strconv.Atoi(v) },
	},
	Active: {
		func(r *models.RFTObservation) string { return strconv.Itoa(r.Active) },
		func(r *models.RFTObservation, v string) { r.Active, _ = strconv.Atoi(v) },
	},
}

func roundInt(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}

func lookupNumeric(name string) (numericColumn, error) {
	c, ok := numericColumns[strings.ToUpper(name)]
	if !ok {
		return numericColumn{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return c, nil
}

func lookupKey(name string) (keyColumn, error) {
	c, ok := keyColumns[strings.ToUpper(name)]
	if !ok {
		return keyColumn{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return c, nil
}

// IsNumeric reports whether name is a numeric column.
func IsNumeric(name string) bool {
	_, ok := numericColumns[strings.ToUpper(name)]
	return ok
}

// Values returns the numeric column name in row order.
func (f Frame) Values(name string) ([]float64, error) {
	c, err := lookupNumeric(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(f))
	for i := range f {
		out[i] = c.get(&f[i])
	}
	return out, nil
}

// Strings returns the key column name in row order.
func (f Frame) Strings(name string) ([]string, error) {
	c, err := lookupKey(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(f))
	for i := range f {
		out[i] = c.get(&f[i])
	}
	return out, nil
}

// Where returns the rows for which keep returns true.
func (f Frame) Where(keep func(models.RFTObservation) bool) Frame {
	var out Frame
	for _, r := range f {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Filter keeps rows where every listed column equals the given value.
func (f Frame) Filter(match map[string]string) (Frame, error) {
	cols := make(map[string]keyColumn, len(match))
	for name := range match {
		c, err := lookupKey(name)
		if err != nil {
			return nil, err
		}
		cols[name] = c
	}
	return f.Where(func(r models.RFTObservation) bool {
		for name, want := range match {
			if cols[name].get(&r) != want {
				return false
			}
		}
		return true
	}), nil
}

// FilterIn keeps rows whose column value is one of values.
func (f Frame) FilterIn(name string, values []string) (Frame, error) {
	c, err := lookupKey(name)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return f.Where(func(r models.RFTObservation) bool { return set[c.get(&r)] }), nil
}

// FilterWells keeps rows for the given wells.
func (f Frame) FilterWells(wells []string) Frame {
	out, _ := f.FilterIn(Well, wells)
	return out
}

// ActiveOnly keeps rows with ACTIVE == 1.
func (f Frame) ActiveOnly() Frame {
	return f.Where(func(r models.RFTObservation) bool { return r.Active == 1 })
}

// Unique returns the distinct values of a key column in first-seen order.
func (f Frame) Unique(name string) ([]string, error) {
	c, err := lookupKey(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for i := range f {
		v := c.get(&f[i])
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// Group is one set of rows sharing the same key values.
type Group struct {
	Key  []string
	Rows Frame
}

// GroupBy partitions f by the key columns. Groups are sorted by key.
func (f Frame) GroupBy(keys ...string) ([]Group, error) {
	cols := make([]keyColumn, len(keys))
	for i, k := range keys {
		c, err := lookupKey(k)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}

	index := make(map[string]int)
	var groups []Group
	for i := range f {
		key := make([]string, len(cols))
		for j, c := range cols {
			key[j] = c.get(&f[i])
		}
		id := strings.Join(key, "\x00")
		g, ok := index[id]
		if !ok {
			g = len(groups)
			index[id] = g
			groups = append(groups, Group{Key: key})
		}
		groups[g].Rows = append(groups[g].Rows, f[i])
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ka, kb := groups[a].Key, groups[b].Key
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] < kb[i]
			}
		}
		return false
	})
	return groups, nil
}

// GroupMean collapses each group to one row holding the key values and the
// NaN-skipping mean of every numeric column. Non-key text columns are left
// empty.
func (f Frame) GroupMean(keys ...string) (Frame, error) {
	return f.aggregate(NanMean, keys...)
}

// GroupSum is GroupMean with sums instead of means.
func (f Frame) GroupSum(keys ...string) (Frame, error) {
	return f.aggregate(NanSum, keys...)
}

func (f Frame) aggregate(agg func([]float64) float64, keys ...string) (Frame, error) {
	groups, err := f.GroupBy(keys...)
	if err != nil {
		return nil, err
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[strings.ToUpper(k)] = true
	}

	out := make(Frame, len(groups))
	buf := make([]float64, 0, len(f))
	for gi, g := range groups {
		row := &out[gi]
		for name, c := range numericColumns {
			if isKey[name] {
				continue
			}
			buf = buf[:0]
			for i := range g.Rows {
				buf = append(buf, c.get(&g.Rows[i]))
			}
			c.set(row, agg(buf))
		}
		for i, k := range keys {
			c, _ := lookupKey(k)
			c.set(row, g.Key[i])
		}
	}
	return out, nil
}
