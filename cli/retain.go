package cli

// This file contains the archiving of retained artifacts after a run.

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-zglob"
)

// retainArtifacts writes one zip archive per retain entry to resultsDir.
// Sources are globs relative to projectDir. Every archive is attempted, the
// errors are returned together.
func (a *App) retainArtifacts(retain map[string]string, projectDir, resultsDir string) ([]string, error) {
	sources := make([]string, 0, len(retain))
	for source := range retain {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var archives []string
	var result *multierror.Error
	for _, source := range sources {
		dest := filepath.Join(resultsDir, retain[source])
		if err := zipGlob(projectDir, source, dest); err != nil {
			a.logger.Error().Err(err).Str("source", source).Str("dest", dest).Msg("Zip file creation failed")
			result = multierror.Append(result, err)
			continue
		}
		a.logger.Info().Str("source", source).Str("dest", dest).Msg("Retained artifacts")
		archives = append(archives, dest)
	}
	return archives, result.ErrorOrNil()
}

// zipGlob archives the files matching pattern below root into dest. Matched
// directories are added with their content. Entry names are relative to
// root. Dest itself is never added.
func zipGlob(root, pattern, dest string) error {
	matches, err := globFiles(filepath.Join(root, pattern))
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	seen := map[string]bool{absDest: true}
	var files []string
	for _, match := range matches {
		err := filepath.WalkDir(match, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if !seen[abs] {
				seen[abs] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", match, err)
		}
	}
	sort.Strings(files)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := addZipFile(zw, root, path); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Close()
}

// globFiles expands pattern, which may use "**". A plain path matches
// itself if it exists.
func globFiles(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		if _, err := os.Stat(pattern); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		return []string{pattern}, nil
	}
	return zglob.Glob(pattern)
}

func addZipFile(zw *zip.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}
	return nil
}
