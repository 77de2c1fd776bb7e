package processing

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
)

// RunHistory loads the manifest of every finished run under runsDir, newest
// first. Directories without a readable manifest are skipped.
func RunHistory(runsDir string) ([]Manifest, error) {
	entries, err := os.ReadDir(runsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	history := []Manifest{}
	for _, d := range entries {
		if !d.IsDir() {
			continue
		}
		var m Manifest
		if err := readJSON(filepath.Join(runsDir, d.Name(), ManifestFilename), &m); err != nil {
			slog.Debug("skipping run without manifest", "run", d.Name(), "error", err)
			continue
		}
		history = append(history, m)
	}

	slices.SortFunc(history, func(a, b Manifest) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RunID, b.RunID)
	})
	return history, nil
}

// LoadRunState reads the latest run-state.json of a run.
func LoadRunState(runsDir, runID string) (*RunStateFile, error) {
	dir, err := runDir(runsDir, runID)
	if err != nil {
		return nil, err
	}
	var doc RunStateFile
	if err := readJSON(filepath.Join(dir, RunStateFilename), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadEvidence reads the ndjson evidence chain persisted for a run.
func LoadEvidence(runsDir, runID string) ([]evidence.Entry, error) {
	dir, err := runDir(runsDir, runID)
	if err != nil {
		return nil, err
	}
	return evidence.ReadNDJSON(filepath.Join(dir, evidence.NDJSONFilename))
}

func runDir(runsDir, runID string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(runsDir, runID), nil
}
