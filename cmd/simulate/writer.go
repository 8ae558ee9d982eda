package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/simforge/simforge/internal/population"
	"github.com/simforge/simforge/internal/results"
)

// artifactDir builds <outputDir>/<spec-stem>/<timestamp>.
func artifactDir(outputDir, specPath string, timestamp string) string {
	stem := filepath.Base(specPath)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	return filepath.Join(outputDir, stem, timestamp)
}

// writeArtifacts is the StateWriter Finalization hands the final
// population state and observation report to; it writes the two
// artifacts atomically (temp file, then rename).
func writeArtifacts(dir string, state population.Frame, output map[string]results.Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := atomicWriteJSON(filepath.Join(dir, "final_state.json"), state); err != nil {
		return fmt.Errorf("write final_state: %w", err)
	}
	if err := atomicWriteJSON(filepath.Join(dir, "output.json"), output); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
