package graph

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

var (
	// ErrInvalidInput means the root path is missing, not a file, or not .sql.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnreadableFile means a file exists but its text could not be loaded.
	ErrUnreadableFile = errors.New("unreadable file")
	// ErrMissingFile means an invoked procedure did not resolve to a file.
	ErrMissingFile = errors.New("missing referenced file")
	// ErrInvalidDirectory means a directory argument is missing or not a directory.
	ErrInvalidDirectory = errors.New("invalid directory")
	// ErrDepthExceeded means a branch went deeper than the configured limit.
	ErrDepthExceeded = errors.New("max depth exceeded")

	errNotRegular = errors.New("not a regular file")
	errNotSQL     = errors.New("not a .sql file")
	errNotDir     = errors.New("not a directory")
)

// PathError reports a problem with a specific path.
// errors.Is matches both Kind and the underlying cause.
type PathError struct {
	Kind error
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: path %q", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: path %q: %v", e.Kind, e.Path, e.Err)
}

func (e *PathError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ValidateRoot checks that path names an existing regular .sql file.
func ValidateRoot(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &PathError{Kind: ErrInvalidInput, Path: path, Err: fs.ErrNotExist}
	}
	if !info.Mode().IsRegular() {
		return &PathError{Kind: ErrInvalidInput, Path: path, Err: errNotRegular}
	}
	if !strings.HasSuffix(strings.ToLower(path), ".sql") {
		return &PathError{Kind: ErrInvalidInput, Path: path, Err: errNotSQL}
	}
	return nil
}

// ValidateDir checks that path names an existing directory.
func ValidateDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &PathError{Kind: ErrInvalidDirectory, Path: path, Err: fs.ErrNotExist}
	}
	if !info.IsDir() {
		return &PathError{Kind: ErrInvalidDirectory, Path: path, Err: errNotDir}
	}
	return nil
}

// checkFile reports a missing referenced file unless path is a regular file.
func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &PathError{Kind: ErrMissingFile, Path: path, Err: fs.ErrNotExist}
	}
	if !info.Mode().IsRegular() {
		return &PathError{Kind: ErrMissingFile, Path: path, Err: errNotRegular}
	}
	return nil
}
