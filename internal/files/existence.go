package files

import (
	"errors"
	"io/fs"
	"os"
)

// Existence is the result of probing for a file, directory or table that may
// legitimately be absent.
type Existence int

const (
	// Error means the probe itself failed; the caller must not assume either
	// outcome.
	Error Existence = iota
	Found
	NotFound
)

// String returns a lower-case label for logging
func (e Existence) String() string {
	switch e {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Stat probes path. A missing path is NotFound with a nil error; any other
// stat failure is Error with that error.
func Stat(path string) (Existence, os.FileInfo, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return Found, info, nil
	case errors.Is(err, fs.ErrNotExist):
		return NotFound, nil, nil
	default:
		return Error, nil, err
	}
}

// DirExists probes a directory. A path that exists but is a file is Error.
func DirExists(path string) (Existence, error) {
	state, info, err := Stat(path)
	if state == Found && !info.IsDir() {
		return Error, &fs.PathError{Op: "stat", Path: path, Err: errors.New("not a directory")}
	}
	return state, err
}

// FileExists probes a regular file. A path that exists but is a directory is
// Error.
func FileExists(path string) (Existence, error) {
	state, info, err := Stat(path)
	if state == Found && info.IsDir() {
		return Error, &fs.PathError{Op: "stat", Path: path, Err: errors.New("is a directory")}
	}
	return state, err
}
