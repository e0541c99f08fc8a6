package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// Template names. Each maps to a "<name>.txt" asset.
const (
	IntentSystem    = "high_level_intent_system_prompt"
	Intent          = "high_level_intent_prompt"
	RelevanceSystem = "chapter_relevance_system_prompt"
	Relevance       = "chapter_relevance_prompt"
	CharacterSystem = "character_system_prompt"
	Character       = "character_prompt"
)

// Names lists every template a conversation needs.
var Names = []string{IntentSystem, Intent, RelevanceSystem, Relevance, CharacterSystem, Character}

// ErrTemplateNotFound is returned by a Source that has no asset for a name.
var ErrTemplateNotFound = errors.New("prompts: template not found")

// Source loads template text by name.
type Source interface {
	Template(name string) (string, error)
}

type fsSource struct {
	fsys fs.FS
	dir  string
}

func (s fsSource) Template(name string) (string, error) {
	data, err := fs.ReadFile(s.fsys, s.dir+name+".txt")
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("prompts: read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Embedded returns the templates compiled into the binary.
func Embedded() Source { return fsSource{fsys: templatesFS, dir: "templates/"} }

// Dir returns a Source reading "<name>.txt" files from dir.
func Dir(dir string) Source { return fsSource{fsys: os.DirFS(filepath.Clean(dir))} }

// FS returns a Source reading "<name>.txt" files from the root of fsys.
func FS(fsys fs.FS) Source { return fsSource{fsys: fsys} }

type overlay []Source

func (o overlay) Template(name string) (string, error) {
	for _, s := range o {
		text, err := s.Template(name)
		if errors.Is(err, ErrTemplateNotFound) {
			continue
		}
		return text, err
	}
	return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Overlay consults sources in order and returns the first template found.
func Overlay(sources ...Source) Source { return overlay(sources) }

// Set holds the loaded conversation templates.
type Set map[string]string

// LoadSet loads every name in Names from src.
func LoadSet(src Source) (Set, error) {
	set := make(Set, len(Names))
	for _, name := range Names {
		text, err := src.Template(name)
		if err != nil {
			return nil, err
		}
		set[name] = text
	}
	return set, nil
}

// Render replaces every {key} in tmpl with vars[key]. Unknown placeholders
// and other braces (JSON examples in templates) are left untouched.
func Render(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
