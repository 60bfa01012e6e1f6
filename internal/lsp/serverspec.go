package lsp

import (
	"path/filepath"
	"slices"
	"strings"
)

// ServerSpec describes how to launch the analysis server for one language.
// Specs are values and are never mutated after resolution.
type ServerSpec struct {
	// Key identifies the server; files sharing a key share one server.
	Key string
	// Name is the display name used in status messages.
	Name string
	// Command is the executable to run.
	Command string
	// Args are command-line arguments.
	Args []string
	// LanguageID is sent in textDocument/didOpen.
	LanguageID string
}

var defaultSpecs = []struct {
	exts []string
	spec ServerSpec
}{
	{[]string{"rs"}, ServerSpec{Key: "rust", Name: "rust-analyzer", Command: "rust-analyzer", LanguageID: "rust"}},
	{[]string{"py"}, ServerSpec{Key: "python", Name: "pylsp", Command: "pylsp", LanguageID: "python"}},
	{[]string{"js", "ts", "tsx", "jsx"}, ServerSpec{
		Key:        "ts",
		Name:       "typescript-language-server",
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		LanguageID: "typescript",
	}},
	{[]string{"go"}, ServerSpec{Key: "go", Name: "gopls", Command: "gopls", LanguageID: "go"}},
}

// SpecForPath resolves path against the built-in table.
func SpecForPath(path string) (ServerSpec, bool) {
	return defaultResolver.Resolve(path)
}

var defaultResolver = NewResolver()

// Resolver maps file extensions to server specs. A resolver without
// overrides is the built-in table.
type Resolver struct {
	byExt    map[string]string
	specs    map[string]ServerSpec
	disabled map[string]bool
}

// NewResolver returns a resolver over the built-in table.
func NewResolver() *Resolver {
	r := &Resolver{
		byExt:    make(map[string]string),
		specs:    make(map[string]ServerSpec),
		disabled: make(map[string]bool),
	}
	for _, entry := range defaultSpecs {
		r.specs[entry.spec.Key] = entry.spec
		for _, ext := range entry.exts {
			r.byExt[ext] = entry.spec.Key
		}
	}
	return r
}

// Override replaces the command and arguments for key. Unknown keys are
// ignored and reported as false. An empty command keeps the default.
func (r *Resolver) Override(key, command string, args []string) bool {
	spec, ok := r.specs[key]
	if !ok {
		return false
	}
	if command != "" {
		spec.Command = command
		spec.Args = slices.Clone(args)
	}
	r.specs[key] = spec
	return true
}

// Disable makes key resolve to nothing.
func (r *Resolver) Disable(key string) {
	r.disabled[key] = true
}

// Resolve returns the spec for path, decided by extension alone.
func (r *Resolver) Resolve(path string) (ServerSpec, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return ServerSpec{}, false
	}
	key, ok := r.byExt[ext]
	if !ok || r.disabled[key] {
		return ServerSpec{}, false
	}
	spec := r.specs[key]
	spec.Args = slices.Clone(spec.Args)
	return spec, true
}

// Specs returns every enabled spec ordered by key, with the extensions
// mapped to it.
func (r *Resolver) Specs() []SpecEntry {
	exts := make(map[string][]string)
	for ext, key := range r.byExt {
		exts[key] = append(exts[key], ext)
	}

	keys := make([]string, 0, len(r.specs))
	for key := range r.specs {
		if !r.disabled[key] {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	out := make([]SpecEntry, 0, len(keys))
	for _, key := range keys {
		e := exts[key]
		slices.Sort(e)
		out = append(out, SpecEntry{Spec: r.specs[key], Extensions: e})
	}
	return out
}

// SpecEntry pairs a spec with the extensions that select it.
type SpecEntry struct {
	Spec       ServerSpec
	Extensions []string
}
