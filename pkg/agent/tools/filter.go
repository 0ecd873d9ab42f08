package tools

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter restricts tool visibility with glob patterns on tool names.
// An empty allow list allows everything; deny always wins.
type Filter struct {
	allow []glob.Glob
	deny  []glob.Glob
}

// NewFilter compiles allow and deny patterns such as "browser_*".
func NewFilter(allow, deny []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range allow {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern %q: %w", p, err)
		}
		f.allow = append(f.allow, g)
	}
	for _, p := range deny {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		f.deny = append(f.deny, g)
	}
	return f, nil
}

// Allows reports whether name passes the filter. A nil filter allows all.
func (f *Filter) Allows(name string) bool {
	if f == nil {
		return true
	}
	for _, g := range f.deny {
		if g.Match(name) {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, g := range f.allow {
		if g.Match(name) {
			return true
		}
	}
	return false
}
