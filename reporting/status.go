package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultStatusFile is where downstream tooling expects the reporting status.
const DefaultStatusFile = "/tmp/output.json"

// StatusFile is a JSON object on disk that several tools write to. Updates
// merge into the existing object instead of replacing it.
type StatusFile struct {
	Path string
}

// Read returns the current content of the file. A missing or invalid file
// reads as an empty object.
func (s StatusFile) Read() (map[string]any, error) {
	values := map[string]any{}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &values); err != nil || values == nil {
		return map[string]any{}, nil
	}
	return values, nil
}

// Update sets the given keys, keeping all others.
func (s StatusFile) Update(values map[string]any) error {
	current, err := s.Read()
	if err != nil {
		return fmt.Errorf("failed to read status file %s: %w", s.Path, err)
	}
	for k, v := range values {
		current[k] = v
	}

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file %s: %w", s.Path, err)
	}
	return nil
}
