package storage

import (
	"encoding/json"
	"os"

	"github.com/san-kum/densfit/internal/md"
)

type ExportData struct {
	Meta     RunMetadata       `json:"meta"`
	Energies []md.EnergyRecord `json:"energies"`
}

// ExportJSON writes the metadata and energy trace of a stored run as a single
// JSON document.
func (s *Store) ExportJSON(runID, path string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	energies, err := s.LoadEnergies(runID)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Meta: *meta, Energies: energies})
}
