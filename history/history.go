package history

// This file contains shared history utilities for loading and selecting
// recorded runs.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cyreport/cyreport/model"
)

// RecordFileName is the name of the run record inside a results directory.
const RecordFileName = "run.json"

type Entry struct {
	Record   model.RunRecord
	FullPath string
}

// LoadEntries loads all run records below root.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			recordPath := filepath.Join(path, RecordFileName)
			if _, err := os.Stat(recordPath); err == nil {
				record, err := ReadRecord(recordPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", recordPath).Msg("Failed to parse run record")
					return nil
				}

				entries = append(entries, Entry{
					Record:   record,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return entries, nil
}

// ReadRecord parses a run record file.
func ReadRecord(recordPath string) (model.RunRecord, error) {
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return model.RunRecord{}, err
	}

	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.RunRecord{}, err
	}

	return record, nil
}

// SortNewestFirst orders entries by start time, newest first.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Record.Timestamp.After(entries[j].Record.Timestamp)
	})
}

// Find selects an entry of entries, which must be sorted newest first.
// arg is either an index counting back from the newest run (0 is the last
// run, -1 the one before) or a prefix of the run ID.
func Find(entries []Entry, arg string) (*Entry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no recorded runs found")
	}
	if arg == "" {
		arg = "0"
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d recorded runs)", arg, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].Record.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no recorded run found matching ID: %s", arg)
}
