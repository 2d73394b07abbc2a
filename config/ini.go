package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// LoadConfigINI loads parameter values from an ini file's section,
// falling back to the schema defaults for keys the file omits. Mirrors
// the teacher's gopkg.in/ini.v1 usage in od_parser.go, minus the EDS
// object-dictionary semantics: this is a flat key=value store.
func LoadConfigINI(path, section string, schema Schema) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load ini %s: %w", path, err)
	}
	sec, err := file.GetSection(section)
	if err != nil {
		log.Warnf("config: section %q not found in %s, using schema defaults", section, path)
		return NewConfig(schema), nil
	}
	cfg := NewConfig(schema)
	for _, spec := range schema {
		key := sec.Key(spec.Name)
		if key.String() == "" {
			continue
		}
		if err := cfg.Set(spec.Name, key.String()); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}
