package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const ManifestName = "run.json"

// RunManifest describes the world a run directory's logs were recorded against.
// Replays rebuild the same world from it before stepping the tick log.
type RunManifest struct {
	RunID         string    `json:"run_id"`
	WorldID       string    `json:"world_id"`
	Profile       string    `json:"profile"`
	CatalogDigest string    `json:"catalog_digest"`
	TuningPath    string    `json:"tuning_path,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

func WriteManifest(runDir string, m RunManifest) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(runDir, ManifestName+".tmp")
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(runDir, ManifestName))
}

func ReadManifest(runDir string) (RunManifest, error) {
	var m RunManifest
	b, err := os.ReadFile(filepath.Join(runDir, ManifestName))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
