// Package config loads the optional nutshell.toml file the CLI reads
// at startup, grounded in the same github.com/naoina/toml decoder idiom
// the retrieved node-config loader uses: struct field names are used
// verbatim as TOML keys, and a missing file is not an error - the
// zero-value Config (everything disabled/unlimited) applies instead.
package config

import (
	"bufio"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Config holds the host-tunable knobs §10 specifies. All are optional;
// the zero value is a valid, fully-permissive configuration.
type Config struct {
	// HeapGCThreshold, when > 0, is wired into vm.VM.GCThreshold: an
	// allocation-pressure auto-collect trigger (§4.8's "MAY add
	// allocation-pressure triggers"). Zero disables it.
	HeapGCThreshold int

	// StackFrames caps the unified value/control stack's capacity, when
	// > 0. Zero means unbounded (subject only to available memory).
	StackFrames int

	// ModulePaths is a search path for host-level script loading,
	// reserved for a future stdlib module loader; the core engine
	// itself never consults it.
	ModulePaths []string
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Load reads path as TOML into a fresh Config. A missing file is not
// an error - it returns the zero-value Config unchanged.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "config: opening %s", path)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		if lineErr, ok := err.(*toml.LineError); ok {
			return cfg, errors.Wrapf(lineErr, "config: %s", path)
		}
		return cfg, errors.Wrapf(err, "config: decoding %s", path)
	}
	return cfg, nil
}
