package driver

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"tapgen/internal/ast"
	"tapgen/internal/codegen"
	"tapgen/internal/config"
	"tapgen/internal/diag"
	"tapgen/internal/tcache"
	"tapgen/internal/version"
)

// cacheEntry is what a successful translation leaves in the cache.
// Diagnostics are kept so that a hit reports the same notes as a miss.
type cacheEntry struct {
	Text    string
	Units   []codegen.UnitStats
	Printfs []codegen.PrintfInfo
	Sigs    []string
	Aliases []int
	Diags   []diag.Diagnostic
}

func newCacheEntry(res *Result) cacheEntry {
	return cacheEntry{
		Text:    res.Text,
		Units:   res.Units,
		Printfs: res.Printfs,
		Sigs:    res.Sigs,
		Aliases: res.Aliases,
		Diags:   res.Bag.Items(),
	}
}

func (e cacheEntry) restore(res *Result) {
	res.Text = e.Text
	res.Units = e.Units
	res.Printfs = e.Printfs
	res.Sigs = e.Sigs
	res.Aliases = e.Aliases
	res.Cached = true
	for _, d := range e.Diags {
		res.Bag.Add(d)
	}
}

// cacheKey digests the translator version, the options and the program.
func cacheKey(prog *ast.Program, opts config.Options) (tcache.Key, error) {
	p, err := msgpack.Marshal(prog)
	if err != nil {
		return tcache.Key{}, fmt.Errorf("encode program: %w", err)
	}
	o, err := msgpack.Marshal(opts)
	if err != nil {
		return tcache.Key{}, fmt.Errorf("encode options: %w", err)
	}
	return tcache.NewKey([]byte(version.Version), o, p)
}
