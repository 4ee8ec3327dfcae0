package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lox/reservoirviz/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(db *sql.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// nullFloat stores NaN as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return nullFloat(*v)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// ReplaceObservations swaps the stored observation frame for rows in a
// single transaction.
func (s *Store) ReplaceObservations(ctx context.Context, rows []models.RFTObservation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rft_observations`); err != nil {
		return 0, fmt.Errorf("clear observations: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rft_observations (well, ensemble, real, date, zone, obs, simulated, stddev, diff, active, east, north, year, tvd, obs_err)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Well, r.Ensemble, r.Real, r.Date, r.Zone,
			nullFloat(r.Obs), nullFloat(r.Simulated), nullFloat(r.Stddev), nullFloat(r.Diff),
			r.Active, nullFloat(r.East), nullFloat(r.North), nullFloat(r.Year),
			nullFloat(r.TVD), nullFloat(r.ObsErr)); err != nil {
			return 0, fmt.Errorf("insert observation %s/%s: %w", r.Well, r.Date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Observations returns the stored frame in import order.
func (s *Store) Observations(ctx context.Context) ([]models.RFTObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT well, ensemble, real, date, zone, obs, simulated, stddev, diff, active, east, north, year, tvd, obs_err
		FROM rft_observations ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RFTObservation
	for rows.Next() {
		var r models.RFTObservation
		var obs, sim, std, diff, east, north, year, tvd, obsErr sql.NullFloat64
		if err := rows.Scan(&r.Well, &r.Ensemble, &r.Real, &r.Date, &r.Zone,
			&obs, &sim, &std, &diff, &r.Active, &east, &north, &year, &tvd, &obsErr); err != nil {
			return nil, err
		}
		r.Obs = floatOrNaN(obs)
		r.Simulated = floatOrNaN(sim)
		r.Stddev = floatOrNaN(std)
		r.Diff = floatOrNaN(diff)
		r.East = floatOrNaN(east)
		r.North = floatOrNaN(north)
		r.Year = floatOrNaN(year)
		r.TVD = floatOrNaN(tvd)
		r.ObsErr = floatOrNaN(obsErr)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Wells returns the distinct well names, sorted.
func (s *Store) Wells(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT well FROM rft_observations ORDER BY well`)
}

// Ensembles returns the distinct ensemble names in the order they were
// imported.
func (s *Store) Ensembles(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT ensemble FROM rft_observations GROUP BY ensemble ORDER BY MIN(id)`)
}

// ReplaceFaultLines swaps the stored fault polylines for points.
func (s *Store) ReplaceFaultLines(ctx context.Context, points []models.FaultPoint) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fault_lines`); err != nil {
		return 0, fmt.Errorf("clear fault lines: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fault_lines (poly_id, seq, x, y) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.PolyID, p.Seq, p.X, p.Y); err != nil {
			return 0, fmt.Errorf("insert fault point %s/%d: %w", p.PolyID, p.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(points), nil
}

// FaultLines returns every fault point ordered by polyline and sequence.
func (s *Store) FaultLines(ctx context.Context) ([]models.FaultPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT poly_id, seq, x, y FROM fault_lines ORDER BY poly_id, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FaultPoint
	for rows.Next() {
		var p models.FaultPoint
		if err := rows.Scan(&p.PolyID, &p.Seq, &p.X, &p.Y); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSurface(ctx context.Context, e models.SurfaceEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surfaces (name, location, unit, colormap, min_value, max_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			location = excluded.location,
			unit = excluded.unit,
			colormap = excluded.colormap,
			min_value = excluded.min_value,
			max_value = excluded.max_value
	`, e.Name, e.Location, e.Unit, e.Colormap, nullFloatPtr(e.MinValue), nullFloatPtr(e.MaxValue), e.CreatedAt)
	return err
}

const surfaceColumns = `name, location, unit, colormap, min_value, max_value, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSurface(sc scanner) (models.SurfaceEntry, error) {
	var e models.SurfaceEntry
	var lo, hi sql.NullFloat64
	if err := sc.Scan(&e.Name, &e.Location, &e.Unit, &e.Colormap, &lo, &hi, &e.CreatedAt); err != nil {
		return e, err
	}
	e.MinValue = floatPtr(lo)
	e.MaxValue = floatPtr(hi)
	return e, nil
}

// Surfaces lists the catalog sorted by name.
func (s *Store) Surfaces(ctx context.Context) ([]models.SurfaceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+surfaceColumns+` FROM surfaces ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SurfaceEntry
	for rows.Next() {
		e, err := scanSurface(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSurface returns the catalog entry called name, or ErrNotFound.
func (s *Store) GetSurface(ctx context.Context, name string) (models.SurfaceEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+surfaceColumns+` FROM surfaces WHERE name = ?`, name)
	e, err := scanSurface(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("surface %q: %w", name, ErrNotFound)
	}
	return e, err
}

// DeleteSurface removes a catalog entry. Removing a missing entry is not
// an error.
func (s *Store) DeleteSurface(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM surfaces WHERE name = ?`, name)
	return err
}
