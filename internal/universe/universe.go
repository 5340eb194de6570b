// Package universe resolves the ticker list a scan runs over: free-text
// watchlists and YAML files of named ticker groups.
package universe

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var ErrUnknownGroup = errors.New("unknown ticker group")

// DefaultWatchlist is used when no universe is configured.
var DefaultWatchlist = []string{
	"AAL", "AAPL", "AMD", "BAC", "C", "F", "GM", "HOOD", "INTC", "KO",
	"NIO", "O", "PFE", "PLTR", "PYPL", "SNAP", "SOFI", "T", "UBER", "VZ",
}

// File is the on-disk universe format:
//
//	groups:
//	  income: [F, T, KO]
//	  tech: AAPL, AMD
type File struct {
	Groups map[string]Watchlist `yaml:"groups"`
}

// Watchlist is a normalised ticker list. In YAML it may be written as a
// sequence or as a single comma/space separated string.
type Watchlist []string

func (w *Watchlist) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*w = Parse(node.Value)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*w = Parse(strings.Join(raw, " "))
		return nil
	}
	return fmt.Errorf("line %d: watchlist must be a string or a list", node.Line)
}

// Parse splits text on commas and whitespace, upper-cases, drops duplicates
// and sorts.
func Parse(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.ToUpper(strings.TrimSpace(f))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LoadFile reads a YAML universe file.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal universe file %s: %w", path, err)
	}
	return &f, nil
}

// Group returns the named group; an empty name merges every group.
func (f *File) Group(name string) ([]string, error) {
	if name == "" {
		var all []string
		for _, g := range f.Groups {
			all = append(all, g...)
		}
		return Parse(strings.Join(all, " ")), nil
	}
	g, ok := f.Groups[name]
	if !ok {
		names := make([]string, 0, len(f.Groups))
		for n := range f.Groups {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownGroup, name, strings.Join(names, ", "))
	}
	return []string(g), nil
}

// Resolve picks the scan universe: explicit tickers first, then the group
// from file, then DefaultWatchlist.
func Resolve(tickers []string, file, group string) ([]string, error) {
	if list := Parse(strings.Join(tickers, " ")); len(list) > 0 {
		return list, nil
	}
	if file != "" {
		f, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		return f.Group(group)
	}
	return append([]string(nil), DefaultWatchlist...), nil
}
