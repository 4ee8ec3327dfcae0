package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lox/reservoirviz/internal/models"
)

// ReplaceFormations swaps the stored well zonation for rows.
func (s *Store) ReplaceFormations(ctx context.Context, rows []models.Formation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM formations`); err != nil {
		return 0, fmt.Errorf("clear formations: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO formations (well, zone, top_tvd, base_tvd) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, f := range rows {
		if _, err := stmt.ExecContext(ctx, f.Well, f.Zone, f.TopTVD, nullFloat(f.BaseTVD)); err != nil {
			return 0, fmt.Errorf("insert formation %s/%s: %w", f.Well, f.Zone, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Formations returns the zonation of well in import order.
func (s *Store) Formations(ctx context.Context, well string) ([]models.Formation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT well, zone, top_tvd, base_tvd FROM formations WHERE well = ? ORDER BY id
	`, well)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Formation
	for rows.Next() {
		var f models.Formation
		var base sql.NullFloat64
		if err := rows.Scan(&f.Well, &f.Zone, &f.TopTVD, &base); err != nil {
			return nil, err
		}
		f.BaseTVD = floatOrNaN(base)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ReplaceObservedPressures swaps the stored observed pressure points.
// Ensemble and Real are not stored.
func (s *Store) ReplaceObservedPressures(ctx context.Context, points []models.PressurePoint) (int, error) {
	return s.replacePressures(ctx, "observed_pressures",
		`INSERT INTO observed_pressures (well, date, depth, pressure) VALUES (?, ?, ?, ?)`,
		points, func(p models.PressurePoint) []any {
			return []any{p.Well, p.Date, p.Depth, p.Pressure}
		})
}

// ReplaceSimulatedPressures swaps the stored simulated pressure profiles.
func (s *Store) ReplaceSimulatedPressures(ctx context.Context, points []models.PressurePoint) (int, error) {
	return s.replacePressures(ctx, "simulated_pressures",
		`INSERT INTO simulated_pressures (well, date, ensemble, real, depth, pressure) VALUES (?, ?, ?, ?, ?, ?)`,
		points, func(p models.PressurePoint) []any {
			return []any{p.Well, p.Date, p.Ensemble, p.Real, p.Depth, p.Pressure}
		})
}

func (s *Store) replacePressures(ctx context.Context, table, insert string, points []models.PressurePoint, args func(models.PressurePoint) []any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return 0, fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, args(p)...); err != nil {
			return 0, fmt.Errorf("insert %s %s/%s: %w", table, p.Well, p.Date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(points), nil
}

// ObservedPressures returns the observed points of well, ordered by date
// and depth.
func (s *Store) ObservedPressures(ctx context.Context, well string) ([]models.PressurePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT well, date, '', 0, depth, pressure FROM observed_pressures
		WHERE well = ? ORDER BY date, depth, id
	`, well)
	if err != nil {
		return nil, err
	}
	return scanPressures(rows)
}

// SimulatedPressures returns the simulated points of well, ordered by
// ensemble, realization and depth.
func (s *Store) SimulatedPressures(ctx context.Context, well string) ([]models.PressurePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT well, date, ensemble, real, depth, pressure FROM simulated_pressures
		WHERE well = ? ORDER BY ensemble, real, depth, id
	`, well)
	if err != nil {
		return nil, err
	}
	return scanPressures(rows)
}

func scanPressures(rows *sql.Rows) ([]models.PressurePoint, error) {
	defer rows.Close()

	var out []models.PressurePoint
	for rows.Next() {
		var p models.PressurePoint
		if err := rows.Scan(&p.Well, &p.Date, &p.Ensemble, &p.Real, &p.Depth, &p.Pressure); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PressureDates returns the distinct observation dates of well, sorted.
func (s *Store) PressureDates(ctx context.Context, well string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date FROM observed_pressures WHERE well = ? ORDER BY date`, well)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
