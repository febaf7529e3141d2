package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/md"
	"github.com/san-kum/densfit/internal/particles"
)

func testResult() *md.Result {
	return &md.Result{
		Energies: []md.EnergyRecord{
			{Step: 0, DensityFitting: -0.5, Kinetic: 0, Total: -0.5},
			{Step: 1, DensityFitting: -0.75, Kinetic: 0.125, Total: -0.625},
		},
		Final:      []dynamo.Vec3{{1, 2, 3}},
		Metrics:    map[string]float64{"rmsd": 1.5},
		StepsTaken: 2,
	}
}

func testFinal() *particles.Set {
	return &particles.Set{
		X:     []dynamo.Vec3{{1, 2, 3}},
		Atoms: dynamo.Atoms{Mass: []float64{12}, Charge: []float64{-0.5}},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Name: "test", Seed: 42, Integrator: "verlet"}, testResult(), testFinal())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Name != "test" {
		t.Errorf("expected name 'test', got '%s'", meta.Name)
	}
	if meta.Seed != 42 {
		t.Errorf("expected seed 42, got %d", meta.Seed)
	}
	if meta.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", meta.Steps)
	}
	if meta.Metrics["rmsd"] != 1.5 {
		t.Errorf("expected rmsd 1.5, got %f", meta.Metrics["rmsd"])
	}

	energies, err := st.LoadEnergies(runID)
	if err != nil {
		t.Fatalf("load energies failed: %v", err)
	}
	if len(energies) != 2 {
		t.Fatalf("expected 2 energy records, got %d", len(energies))
	}
	if energies[1] != testResult().Energies[1] {
		t.Errorf("energy record mismatch: %+v", energies[1])
	}

	coords, err := st.LoadCoordinates(runID)
	if err != nil {
		t.Fatalf("load coordinates failed: %v", err)
	}
	if coords.X[0] != (dynamo.Vec3{1, 2, 3}) || coords.Atoms.Charge[0] != -0.5 {
		t.Errorf("coordinate mismatch: %+v", coords)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	for _, name := range []string{"first", "second"} {
		if _, err := st.Save(RunMetadata{Name: name}, testResult(), nil); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Name != "first" {
		t.Errorf("expected oldest run first, got %s", runs[0].Name)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v, %v", runs, err)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runID, err := st.Save(RunMetadata{Name: "test"}, testResult(), testFinal())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "energies.csv", "coordinates.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
	if st.EnergiesPath(runID) != filepath.Join(runDir, "energies.csv") {
		t.Errorf("unexpected energies path %s", st.EnergiesPath(runID))
	}
}

func TestExportJSON(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runID, err := st.Save(RunMetadata{Name: "test", Similarity: "cross-correlation"}, testResult(), nil)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(tmpDir, "export.json")
	if err := st.ExportJSON(runID, out); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var exported ExportData
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatal(err)
	}
	if exported.Meta.Similarity != "cross-correlation" || len(exported.Energies) != 2 {
		t.Errorf("unexpected export: %+v", exported)
	}
}
