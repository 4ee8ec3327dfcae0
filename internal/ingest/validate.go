package ingest

import (
	"math"
	"strings"

	"github.com/lox/reservoirviz/internal/models"
)

const (
	FlagMissingKey         = "missing_key"
	FlagActiveInvalid      = "active_invalid"
	FlagObsMissing         = "obs_missing"
	FlagPressureNegative   = "pressure_negative"
	FlagStddevNegative     = "stddev_negative"
	FlagCoordinatesPartial = "coordinates_partial"
)

// ValidateObservation returns quality flags for an imported row. Rows
// flagged with FlagMissingKey or FlagActiveInvalid are rejected by the
// importer; the rest are kept and reported.
func ValidateObservation(obs *models.RFTObservation) []string {
	var flags []string

	if strings.TrimSpace(obs.Well) == "" || strings.TrimSpace(obs.Ensemble) == "" ||
		strings.TrimSpace(obs.Date) == "" || strings.TrimSpace(obs.Zone) == "" {
		flags = append(flags, FlagMissingKey)
	}

	if obs.Active != 0 && obs.Active != 1 {
		flags = append(flags, FlagActiveInvalid)
	}

	if math.IsNaN(obs.Obs) {
		flags = append(flags, FlagObsMissing)
	}

	if obs.Obs < 0 || obs.Simulated < 0 {
		flags = append(flags, FlagPressureNegative)
	}

	if obs.Stddev < 0 {
		flags = append(flags, FlagStddevNegative)
	}

	if math.IsNaN(obs.East) != math.IsNaN(obs.North) {
		flags = append(flags, FlagCoordinatesPartial)
	}

	return flags
}

// rejects reports whether flags make a row unusable.
func rejects(flags []string) bool {
	for _, f := range flags {
		if f == FlagMissingKey || f == FlagActiveInvalid {
			return true
		}
	}
	return false
}
