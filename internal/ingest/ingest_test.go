package ingest

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lox/reservoirviz/internal/models"
	"github.com/lox/reservoirviz/internal/store"
)

const rftCSV = `WELL,ENSEMBLE,REAL,DATE,ZONE,OBS,SIMULATED,DIFF,ACTIVE,EAST,NORTH
A,iter-0,0,2005-05-10,Z1,250,240,10,1,100,200
A,iter-0,1,2005-05-10,Z1,250,260,-10,1,100,200
A,iter-0,2,2005-05-10,Z1,250,,,,100,200
B,iter-0,0,2006-01-01,Z2,300,310,-10,0,,
`

func TestReadRFT(t *testing.T) {
	rows, err := ReadRFT(strings.NewReader(rftCSV))
	if err != nil {
		t.Fatalf("ReadRFT: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}

	a := rows[1]
	if a.Well != "A" || a.Real != 1 || a.Simulated != 260 || a.Active != 1 || a.East != 100 {
		t.Errorf("row 1 = %+v", a)
	}
	// Empty cells decode as NaN and ACTIVE defaults to 1.
	if !math.IsNaN(rows[2].Simulated) || !math.IsNaN(rows[2].Diff) || rows[2].Active != 1 {
		t.Errorf("row 2 = %+v", rows[2])
	}
	if !math.IsNaN(rows[3].East) || rows[3].Active != 0 {
		t.Errorf("row 3 = %+v", rows[3])
	}
	if !math.IsNaN(rows[0].Year) {
		t.Errorf("missing YEAR column should be NaN, got %v", rows[0].Year)
	}

	// STDDEV derived from SIMULATED per (WELL, DATE, ENSEMBLE).
	want := math.Sqrt(200)
	for i := 0; i < 3; i++ {
		if math.Abs(rows[i].Stddev-want) > 1e-9 {
			t.Errorf("row %d stddev = %v, want %v", i, rows[i].Stddev, want)
		}
	}
	if !math.IsNaN(rows[3].Stddev) {
		t.Errorf("single-value group stddev = %v, want NaN", rows[3].Stddev)
	}
}

func TestReadRFTExplicitStddev(t *testing.T) {
	csv := "well,ensemble,date,zone,obs,simulated,diff,stddev\nA,e,d,z,1,2,1,0.5\n"
	rows, err := ReadRFT(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Stddev != 0.5 {
		t.Errorf("stddev = %v, want 0.5 from the file", rows[0].Stddev)
	}
}

func TestReadRFTDepthColumns(t *testing.T) {
	csv := "WELL,ENSEMBLE,DATE,ZONE,OBS,SIMULATED,DIFF,TVD,OBS_ERR\nA,e,d,z,250,240,10,1620.5,2\n"
	rows, err := ReadRFT(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].TVD != 1620.5 || rows[0].ObsErr != 2 {
		t.Errorf("tvd/obs_err = %v/%v", rows[0].TVD, rows[0].ObsErr)
	}

	rows, err = ReadRFT(strings.NewReader(rftCSV))
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(rows[0].TVD) || !math.IsNaN(rows[0].ObsErr) {
		t.Errorf("missing columns should be NaN, got %v/%v", rows[0].TVD, rows[0].ObsErr)
	}
}

func TestReadFormations(t *testing.T) {
	csv := "WELL,ZONE,TOP_TVD,BASE_TVD\nA,Valysar,1600,1650\nA,Therys,1650,\n"
	rows, err := ReadFormations(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadFormations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Zone != "Valysar" || rows[0].TopTVD != 1600 || rows[0].BaseTVD != 1650 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if !math.IsNaN(rows[1].BaseTVD) {
		t.Errorf("empty base should be open-ended, got %v", rows[1].BaseTVD)
	}

	tests := []struct {
		name string
		csv  string
	}{
		{"missing top", "WELL,ZONE\nA,Z\n"},
		{"empty zone", "WELL,ZONE,TOP_TVD\nA,,10\n"},
		{"empty top", "WELL,ZONE,TOP_TVD\nA,Z,\n"},
		{"base above top", "WELL,ZONE,TOP_TVD,BASE_TVD\nA,Z,20,10\n"},
		{"bad number", "WELL,ZONE,TOP_TVD\nA,Z,deep\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadFormations(strings.NewReader(tt.csv)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadPressures(t *testing.T) {
	observed := "WELL,DATE,DEPTH,PRESSURE\nA,2005-05-10,1620,300\nA,2005-05-10,,301\n"
	pts, err := ReadPressures(strings.NewReader(observed), false)
	if err != nil {
		t.Fatalf("ReadPressures: %v", err)
	}
	if len(pts) != 1 || pts[0].Depth != 1620 || pts[0].Pressure != 300 || pts[0].Ensemble != "" {
		t.Errorf("observed = %+v, want one point with the undefined depth skipped", pts)
	}

	simulated := "WELL,DATE,ENSEMBLE,REAL,DEPTH,PRESSURE\nA,2005-05-10,iter-0,3,1600,290\nA,2005-05-10,iter-0,,1650,295\n"
	pts, err = ReadPressures(strings.NewReader(simulated), true)
	if err != nil {
		t.Fatalf("ReadPressures simulated: %v", err)
	}
	if len(pts) != 2 || pts[0].Ensemble != "iter-0" || pts[0].Real != 3 || pts[1].Real != 0 {
		t.Errorf("simulated = %+v", pts)
	}

	if _, err := ReadPressures(strings.NewReader(observed), true); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn without ENSEMBLE", err)
	}
	if _, err := ReadPressures(strings.NewReader("WELL,DATE,DEPTH,PRESSURE\n,d,1,2\n"), false); err == nil {
		t.Error("expected error without a well")
	}
}

func TestReadRFTErrors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		missing bool
	}{
		{"empty", "", true},
		{"missing columns", "WELL,DATE\nA,2005\n", true},
		{"bad number", "WELL,ENSEMBLE,DATE,ZONE,OBS,SIMULATED,DIFF\nA,e,d,z,abc,1,1\n", false},
		{"bad active", "WELL,ENSEMBLE,DATE,ZONE,OBS,SIMULATED,DIFF,ACTIVE\nA,e,d,z,1,1,1,0.5\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRFT(strings.NewReader(tt.csv))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrMissingColumn); got != tt.missing {
				t.Errorf("errors.Is(ErrMissingColumn) = %v, want %v (%v)", got, tt.missing, err)
			}
		})
	}
}

func TestComputeStddev(t *testing.T) {
	rows := []models.RFTObservation{
		{Well: "A", Date: "d1", Ensemble: "e", Simulated: 1},
		{Well: "A", Date: "d1", Ensemble: "e", Simulated: 3},
		{Well: "A", Date: "d1", Ensemble: "f", Simulated: 7},
		{Well: "A", Date: "d1", Ensemble: "e", Simulated: math.NaN()},
	}
	ComputeStddev(rows)
	for _, i := range []int{0, 1, 3} {
		if math.Abs(rows[i].Stddev-math.Sqrt2) > 1e-12 {
			t.Errorf("row %d stddev = %v, want sqrt(2)", i, rows[i].Stddev)
		}
	}
	if !math.IsNaN(rows[2].Stddev) {
		t.Errorf("row 2 stddev = %v, want NaN", rows[2].Stddev)
	}
}

func TestReadFaultLines(t *testing.T) {
	csv := "POLY_ID,X_UTME,Y_UTMN\nF1,0,0\nF2,5,5\nF1,1,1\n"
	pts, err := ReadFaultLines(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadFaultLines: %v", err)
	}
	want := []models.FaultPoint{
		{PolyID: "F1", Seq: 0, X: 0, Y: 0},
		{PolyID: "F2", Seq: 0, X: 5, Y: 5},
		{PolyID: "F1", Seq: 1, X: 1, Y: 1},
	}
	if len(pts) != len(want) {
		t.Fatalf("points = %d", len(pts))
	}
	for i := range want {
		if pts[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, pts[i], want[i])
		}
	}

	if _, err := ReadFaultLines(strings.NewReader("POLY_ID,X_UTME,Y_UTMN\nF1,,1\n")); err == nil {
		t.Error("expected error for incomplete point")
	}
	if _, err := ReadFaultLines(strings.NewReader("ID,X,Y\n")); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn", err)
	}
}

func TestValidateObservation(t *testing.T) {
	valid := models.RFTObservation{
		Well: "A", Ensemble: "e", Date: "d", Zone: "z",
		Obs: 250, Simulated: 240, Stddev: 1, Active: 1, East: 1, North: 2,
	}
	tests := []struct {
		name      string
		mutate    func(*models.RFTObservation)
		wantFlags []string
	}{
		{"valid", func(*models.RFTObservation) {}, nil},
		{"missing well", func(o *models.RFTObservation) { o.Well = " " }, []string{FlagMissingKey}},
		{"active out of range", func(o *models.RFTObservation) { o.Active = 2 }, []string{FlagActiveInvalid}},
		{"no observation", func(o *models.RFTObservation) { o.Obs = math.NaN() }, []string{FlagObsMissing}},
		{"negative pressure", func(o *models.RFTObservation) { o.Simulated = -1 }, []string{FlagPressureNegative}},
		{"negative stddev", func(o *models.RFTObservation) { o.Stddev = -0.1 }, []string{FlagStddevNegative}},
		{"undefined stddev", func(o *models.RFTObservation) { o.Stddev = math.NaN() }, nil},
		{"half coordinates", func(o *models.RFTObservation) { o.North = math.NaN() }, []string{FlagCoordinatesPartial}},
		{"no coordinates", func(o *models.RFTObservation) { o.East, o.North = math.NaN(), math.NaN() }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := valid
			tt.mutate(&obs)
			got := ValidateObservation(&obs)
			sort.Strings(got)
			if len(got) != len(tt.wantFlags) {
				t.Fatalf("flags = %v, want %v", got, tt.wantFlags)
			}
			for i := range got {
				if got[i] != tt.wantFlags[i] {
					t.Errorf("flags = %v, want %v", got, tt.wantFlags)
				}
			}
		})
	}
}

type memFetcher map[string]string

func (m memFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	s, ok := m[location]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(s), nil
}

func setupImporter(t *testing.T, files memFetcher) (*Importer, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, nil)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewImporter(files, st, nil), st
}

func TestImportRFT(t *testing.T) {
	files := memFetcher{
		"rft.csv": rftCSV + "C,iter-1,0,2006-01-01,Z2,300,310,-10,7,,\n",
	}
	im, st := setupImporter(t, files)
	ctx := context.Background()

	res, err := im.ImportRFT(ctx, "rft.csv", false)
	if err != nil {
		t.Fatalf("ImportRFT: %v", err)
	}
	if res.Parsed != 5 || res.Stored != 4 || res.Rejected != 1 || res.Skipped {
		t.Errorf("result = %+v", res)
	}
	if res.Flagged[FlagActiveInvalid] != 1 {
		t.Errorf("flags = %v", res.Flagged)
	}

	rows, err := st.Observations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Errorf("stored rows = %d, want 4", len(rows))
	}

	again, err := im.ImportRFT(ctx, "rft.csv", false)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("unchanged file should be skipped")
	}
	forced, err := im.ImportRFT(ctx, "rft.csv", true)
	if err != nil {
		t.Fatal(err)
	}
	if forced.Skipped || forced.Stored != 4 {
		t.Errorf("forced import = %+v", forced)
	}

	runs, err := st.RecentImportRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	skipped := 0
	for _, r := range runs {
		if !r.Success {
			t.Errorf("run %d not successful", r.ID)
		}
		if r.Skipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("skipped runs = %d, want 1", skipped)
	}
}

func TestImportFailureRecorded(t *testing.T) {
	files := memFetcher{"bad.csv": "WELL\nA\n"}
	im, st := setupImporter(t, files)
	ctx := context.Background()

	if _, err := im.ImportRFT(ctx, "bad.csv", false); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn", err)
	}
	if _, err := im.ImportFaults(ctx, "missing.csv", false); err == nil {
		t.Error("expected fetch error")
	}

	runs, err := st.RecentImportRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Success || !r.ErrorMessage.Valid {
			t.Errorf("run = %+v, want recorded failure", r)
		}
	}
	if p, _ := st.LatestRawPayload(ctx, KindRFT); p != nil {
		t.Error("failed import should not store its payload")
	}
}

func TestImportFaults(t *testing.T) {
	files := memFetcher{"faults.csv": "POLY_ID,X_UTME,Y_UTMN\nF1,0,0\nF1,1,1\n"}
	im, st := setupImporter(t, files)
	ctx := context.Background()

	res, err := im.ImportFaults(ctx, "faults.csv", false)
	if err != nil {
		t.Fatalf("ImportFaults: %v", err)
	}
	if res.Stored != 2 {
		t.Errorf("stored = %d", res.Stored)
	}
	pts, _ := st.FaultLines(ctx)
	if len(pts) != 2 {
		t.Errorf("fault points = %d", len(pts))
	}
}

func TestImportProfiles(t *testing.T) {
	files := memFetcher{
		"zones.csv": "WELL,ZONE,TOP_TVD,BASE_TVD\nA,Z1,1600,1650\nB,Z1,1500,\n",
		"obs.csv":   "WELL,DATE,DEPTH,PRESSURE\nA,2006-01-01,1620,290\nA,2005-05-10,1620,300\n",
		"sim.csv":   "WELL,DATE,ENSEMBLE,REAL,DEPTH,PRESSURE\nA,2005-05-10,iter-0,0,1600,290\nA,2005-05-10,iter-0,0,1650,295\n",
	}
	im, st := setupImporter(t, files)
	ctx := context.Background()

	res, err := im.ImportFormations(ctx, "zones.csv", false)
	if err != nil {
		t.Fatalf("ImportFormations: %v", err)
	}
	if res.Kind != KindFormations || res.Parsed != 2 || res.Stored != 2 {
		t.Errorf("formations result = %+v", res)
	}
	zones, err := st.Formations(ctx, "B")
	if err != nil {
		t.Fatal(err)
	}
	if len(zones) != 1 || !math.IsNaN(zones[0].BaseTVD) {
		t.Errorf("zones of B = %+v", zones)
	}

	res, err = im.ImportPressures(ctx, "obs.csv", false, false)
	if err != nil {
		t.Fatalf("ImportPressures observed: %v", err)
	}
	if res.Kind != KindObservedPressure || res.Stored != 2 {
		t.Errorf("observed result = %+v", res)
	}
	res, err = im.ImportPressures(ctx, "sim.csv", true, false)
	if err != nil {
		t.Fatalf("ImportPressures simulated: %v", err)
	}
	if res.Kind != KindSimulatedPressure || res.Stored != 2 {
		t.Errorf("simulated result = %+v", res)
	}

	dates, err := st.PressureDates(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 2 || dates[0] != "2005-05-10" {
		t.Errorf("dates = %v", dates)
	}
	sim, err := st.SimulatedPressures(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(sim) != 2 || sim[0].Ensemble != "iter-0" || sim[1].Depth != 1650 {
		t.Errorf("simulated = %+v", sim)
	}

	// The observed and simulated files are tracked separately.
	again, err := im.ImportPressures(ctx, "sim.csv", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("unchanged simulated file should be skipped")
	}
}

func TestRegisterSurface(t *testing.T) {
	im, st := setupImporter(t, memFetcher{})
	ctx := context.Background()

	if err := im.RegisterSurface(ctx, models.SurfaceEntry{Name: "top"}); err == nil {
		t.Error("expected error without location")
	}
	if err := im.RegisterSurface(ctx, models.SurfaceEntry{Name: "top", Location: "top.gri"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetSurface(ctx, "top"); err != nil {
		t.Errorf("GetSurface: %v", err)
	}
}
