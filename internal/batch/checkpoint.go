// Package batch turns a directory of captured page images into a
// single text file: ordered OCR fan-out, retry on transient failures,
// periodic checkpoints for resume, and partial output on interrupt.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Checkpoint records how far a batch run got, so an interrupted run
// can resume instead of restarting. It is written periodically by the
// main loop and read once at startup.
type Checkpoint struct {
	ProcessedFiles []string `json:"processed_files"`
	CurrentIndex   int      `json:"current_index"`
	Timestamp      float64  `json:"timestamp"`
}

// SaveCheckpoint writes the progress snapshot to path.
func SaveCheckpoint(path string, processed []string, index int) error {
	cp := Checkpoint{
		ProcessedFiles: processed,
		CurrentIndex:   index,
		Timestamp:      float64(time.Now().UnixNano()) / float64(time.Second),
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the checkpoint at path. A missing file is not
// an error; it returns (nil, nil) so callers start fresh.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// RemoveCheckpoint deletes the checkpoint file. Missing files are
// ignored; a successful run calls this unconditionally.
func RemoveCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Apply splits files into already-processed and remaining according to
// the checkpoint. A checkpoint referencing any file not present in the
// current input set is stale and rejected wholesale (ok=false), since
// its index no longer means anything.
func (c *Checkpoint) Apply(files []string) (remaining []string, ok bool) {
	if c == nil {
		return files, true
	}

	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[f] = true
	}
	processed := make(map[string]bool, len(c.ProcessedFiles))
	for _, f := range c.ProcessedFiles {
		if !current[f] {
			return files, false
		}
		processed[f] = true
	}

	for _, f := range files {
		if !processed[f] {
			remaining = append(remaining, f)
		}
	}
	return remaining, true
}
