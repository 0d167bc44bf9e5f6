package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML options file over the defaults. Keys not present in the
// file keep their default values.
func Load(path string) (Options, error) {
	opts := Default()
	meta, err := toml.DecodeFile(path, &opts)
	if err != nil {
		return Options{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Options{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// Decode parses TOML text over the defaults; used for inline overrides.
func Decode(text string) (Options, error) {
	opts := Default()
	if _, err := toml.Decode(text, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
