package graph

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/zheng/sprocmap/internal/extract"
)

// Resolver maps invoked procedure names to files in a working directory.
type Resolver struct {
	dir   string
	index map[string][]string // lower-case file name -> on-disk spellings
}

// NewResolver indexes the .sql files in dir. If the directory cannot be
// listed, lookups fall back to checking the exact file name.
func NewResolver(dir string) *Resolver {
	r := &Resolver{dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return r
	}

	r.index = make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".sql") {
			continue
		}
		key := strings.ToLower(name)
		r.index[key] = append(r.index[key], name)
	}
	return r
}

// Dir returns the working directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve finds the file for an invoked name.
// Order: exact "<name>.sql", any case variant of it, then the same two
// lookups on the name with its schema qualifier removed.
func (r *Resolver) Resolve(name string) (string, bool) {
	if path, ok := r.lookup(name + ".sql"); ok {
		return path, true
	}
	if unq := extract.Unqualified(name); unq != name && unq != "" {
		return r.lookup(unq + ".sql")
	}
	return "", false
}

func (r *Resolver) lookup(fileName string) (string, bool) {
	if r.index == nil {
		path := filepath.Join(r.dir, fileName)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
		return "", false
	}

	variants := r.index[strings.ToLower(fileName)]
	if len(variants) == 0 {
		return "", false
	}
	for _, v := range variants {
		if v == fileName {
			return filepath.Join(r.dir, v), true
		}
	}
	// ReadDir returns entries sorted by name, so this pick is stable
	return filepath.Join(r.dir, variants[0]), true
}
