package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicFile is a temp file beside its target. Nothing is visible at the
// target until Commit succeeds.
type AtomicFile struct {
	*os.File
	target string
}

// CreateAtomic opens a temp file in path's directory, creating the directory
// if needed.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &AtomicFile{File: tmp, target: path}, nil
}

// Commit syncs the temp file and renames it over the target. The temp file
// is removed if any step fails.
func (a *AtomicFile) Commit() error {
	name := a.Name()
	steps := []struct {
		what string
		do   func() error
	}{
		{"sync", a.Sync},
		{"close", a.File.Close},
		{"chmod", func() error { return os.Chmod(name, 0644) }},
		{"rename", func() error { return os.Rename(name, a.target) }},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			a.Abort()
			return fmt.Errorf("failed to %s %s: %w", s.what, a.target, err)
		}
	}
	return nil
}

// Abort drops the temp file and leaves the target untouched
func (a *AtomicFile) Abort() {
	a.File.Close()
	os.Remove(a.Name())
}

// WriteFileAtomic replaces path with whatever write produces
func WriteFileAtomic(path string, write func(f *os.File) error) error {
	af, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if err := write(af.File); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

// PublishEntries moves each named file or directory from staged into target,
// replacing what is there. If any move fails the entries already published
// are taken back out and their predecessors restored.
func PublishEntries(staged, target string, names []string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	type published struct {
		dst, old string
		hadOld   bool
	}
	var done []published
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			p := done[i]
			os.RemoveAll(p.dst)
			if p.hadOld {
				os.Rename(p.old, p.dst)
			}
		}
	}

	for _, name := range names {
		src := filepath.Join(staged, name)
		p := published{dst: filepath.Join(target, name)}
		p.old = p.dst + ".old"

		if _, err := os.Lstat(src); err != nil {
			rollback()
			return fmt.Errorf("staged entry %s: %w", name, err)
		}
		if err := os.RemoveAll(p.old); err != nil {
			rollback()
			return fmt.Errorf("failed to clear %s: %w", p.old, err)
		}

		_, err := os.Lstat(p.dst)
		switch {
		case err == nil:
			if err := os.Rename(p.dst, p.old); err != nil {
				rollback()
				return fmt.Errorf("failed to move %s aside: %w", p.dst, err)
			}
			p.hadOld = true
		case !errors.Is(err, fs.ErrNotExist):
			rollback()
			return fmt.Errorf("failed to stat %s: %w", p.dst, err)
		}

		if err := os.Rename(src, p.dst); err != nil {
			if p.hadOld {
				os.Rename(p.old, p.dst)
			}
			rollback()
			return fmt.Errorf("failed to publish %s: %w", name, err)
		}
		done = append(done, p)
	}

	for _, p := range done {
		if p.hadOld {
			os.RemoveAll(p.old)
		}
	}
	return nil
}
