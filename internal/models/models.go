package models

import "time"

// RFTObservation is one row of an RFT observation frame: a pressure
// measurement in a well zone paired with the value simulated by a single
// realization of an ensemble.
type RFTObservation struct {
	Well      string
	Ensemble  string
	Real      int
	Date      string // kept as text, e.g. "2005-05-10" or "20050510"
	Zone      string
	Obs       float64
	Simulated float64
	Stddev    float64 // NaN when undefined (single realization)
	Diff      float64
	Active    int
	East      float64
	North     float64
	Year      float64
	TVD       float64 // true vertical depth of the observation, NaN when unknown
	ObsErr    float64 // observation error, NaN when unknown
}

// Formation is one zone of a well's zonation, bounded by true vertical
// depths. BaseTVD is NaN for an open-ended bottom zone.
type Formation struct {
	Well    string
	Zone    string
	TopTVD  float64
	BaseTVD float64
}

// PressurePoint is a pressure at a depth along a well. Observed points
// have no ensemble; simulated points carry the ensemble and realization
// that produced them.
type PressurePoint struct {
	Well     string
	Date     string
	Ensemble string
	Real     int
	Depth    float64
	Pressure float64
}

// FaultPoint is one vertex of a fault polyline.
type FaultPoint struct {
	PolyID string
	Seq    int
	X      float64
	Y      float64
}

// SurfaceEntry registers a named surface and its rendering defaults.
type SurfaceEntry struct {
	Name      string
	Location  string // file path or fetch URL
	Unit      string
	Colormap  string // "viridis" when empty
	MinValue  *float64
	MaxValue  *float64
	CreatedAt time.Time
}
