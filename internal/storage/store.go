package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/densfit/internal/md"
	"github.com/san-kum/densfit/internal/particles"
)

const (
	metadataFile    = "metadata.json"
	energiesFile    = "energies.csv"
	coordinatesFile = "coordinates.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Timestamp     time.Time          `json:"timestamp"`
	Seed          int64              `json:"seed"`
	Atoms         int                `json:"atoms"`
	Ranks         int                `json:"ranks"`
	Steps         int64              `json:"steps"`
	Integrator    string             `json:"integrator"`
	Similarity    string             `json:"similarity"`
	ForceConstant float64            `json:"force_constant"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Save writes a run directory holding the metadata, the energy trace and the
// final coordinates. ID, Timestamp, Steps and Metrics of meta are filled in.
func (s *Store) Save(meta RunMetadata, result *md.Result, final *particles.Set) (string, error) {
	now := time.Now()
	meta.ID = fmt.Sprintf("%s_%d", meta.Name, now.UnixNano())
	meta.Timestamp = now
	meta.Steps = result.StepsTaken
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, energiesFile), result.Energies); err != nil {
		return "", fmt.Errorf("writing energies: %w", err)
	}
	if final != nil {
		if err := writeCSV(filepath.Join(runDir, coordinatesFile), final.Records()); err != nil {
			return "", fmt.Errorf("writing coordinates: %w", err)
		}
	}
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// List returns the stored runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadEnergies(runID string) ([]md.EnergyRecord, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, energiesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []md.EnergyRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("reading energies: %w", err)
	}
	return records, nil
}

func (s *Store) LoadCoordinates(runID string) (*particles.Set, error) {
	return particles.Load(filepath.Join(s.baseDir, runID, coordinatesFile))
}

// EnergiesPath is the energy trace of a run, for copying out.
func (s *Store) EnergiesPath(runID string) string {
	return filepath.Join(s.baseDir, runID, energiesFile)
}
