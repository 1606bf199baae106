package files

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"mdbundle/internal/config"
)

// FileInfo describes one discovered input file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// FeedFile pairs an input file with the schema that reads it
type FeedFile struct {
	FileInfo
	Schema config.FeedSchema
}

// Discovery lists input files. Relative directories resolve against basePath.
type Discovery struct {
	basePath string
}

func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// hidden reports names that are never inputs: dotfiles and office lock files
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}

func byName(a, b FileInfo) int { return cmp.Compare(a.Name, b.Name) }

func fileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{Path: path, Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()}
}

// FindFeedFiles returns the files of dir claimed by a feed schema, by name.
// Names no schema claims come back sorted in unmatched.
func (d *Discovery) FindFeedFiles(dir string, schemas *config.FeedSchemas) (matched []FeedFile, unmatched []string, err error) {
	root := d.resolve(dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", root, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || hidden(name) {
			continue
		}
		schema, ok := schemas.ForFile(name)
		if !ok {
			unmatched = append(unmatched, name)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		matched = append(matched, FeedFile{
			FileInfo: fileInfo(filepath.Join(root, name), info),
			Schema:   schema,
		})
	}

	slices.SortFunc(matched, func(a, b FeedFile) int { return byName(a.FileInfo, b.FileInfo) })
	slices.Sort(unmatched)
	return matched, unmatched, nil
}

// FindFilesByPattern returns the regular files of dir matching a glob
// pattern, by name. Files that vanish while listing are left out.
func (d *Discovery) FindFilesByPattern(dir string, pattern string) ([]FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(d.resolve(dir), pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	var found []FileInfo
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || hidden(info.Name()) {
			continue
		}
		found = append(found, fileInfo(path, info))
	}
	slices.SortFunc(found, byName)
	return found, nil
}
