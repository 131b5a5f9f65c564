package evidence

import (
	"encoding/json"
	"path/filepath"
)

const ManifestName = "manifest.json"

// Artifact describes one file staged for packaging.
type Artifact struct {
	RelativePath string `json:"relative_path"`
	Task         string `json:"task"`
	Source       string `json:"source"`
	CollectedAt  string `json:"collected_at"`
	SizeBytes    int64  `json:"size_bytes"`
	SHA256       string `json:"sha256"`
}

type Manifest struct {
	RunID     string            `json:"run_id"`
	CreatedAt string            `json:"created_at"`
	Artifacts []Artifact        `json:"artifacts"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func WriteManifest(outputDir string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(outputDir, ManifestName), b, 0o600)
}
