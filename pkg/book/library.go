package book

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
)

// Library is the set of books available for conversation, keyed by file stem.
type Library struct {
	books map[string]*Book
	ids   []string
}

// LoadDir loads every *.json document in dir.
func LoadDir(dir string, logger *slog.Logger) (*Library, error) {
	return LoadFS(os.DirFS(dir), logger)
}

// LoadFS loads every *.json document at the root of fsys. Documents that fail
// to parse are skipped with a warning; an empty result is an error.
func LoadFS(fsys fs.FS, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("book: read library: %w", err)
	}

	lib := &Library{books: map[string]*Book{}}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}

		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("book: read %s: %w", e.Name(), err)
		}

		b, err := Parse(data)
		if err != nil {
			logger.Warn("book: skipping document", "file", e.Name(), "error", err)
			continue
		}

		b.ID = strings.TrimSuffix(e.Name(), ".json")
		lib.books[b.ID] = b
		lib.ids = append(lib.ids, b.ID)
	}

	if len(lib.ids) == 0 {
		return nil, fmt.Errorf("book: no books found")
	}

	sort.Strings(lib.ids)
	return lib, nil
}

// NewLibrary builds a library from in-memory books; IDs must be set.
func NewLibrary(books ...*Book) *Library {
	lib := &Library{books: map[string]*Book{}}
	for _, b := range books {
		lib.books[b.ID] = b
		lib.ids = append(lib.ids, b.ID)
	}
	sort.Strings(lib.ids)
	return lib
}

// IDs returns book IDs in sorted order.
func (l *Library) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Get returns the book with the given ID.
func (l *Library) Get(id string) (*Book, bool) {
	b, ok := l.books[id]
	return b, ok
}

// DisplayName turns a file stem such as "a_study_in_scarlet" into
// "a study in scarlet".
func DisplayName(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}
