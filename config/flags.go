package config

import (
	"flag"
	"fmt"
)

// Binding collects the flag.FlagSet pointers registered for one schema
// under one group prefix, so Config() can read them back after Parse.
// Grounded on kstaniek-go-ampio-server/cmd/can-server/config.go, which
// collects flag pointers up front and validates once after Parse rather
// than validating flag-by-flag as they're declared.
type Binding struct {
	schema Schema
	group  string
	values map[string]*string
}

// RegisterFlags declares one long flag per schema parameter, namespaced
// as "--<group>-<name>", e.g. group "can" + parameter "serial-baud-rate"
// registers "--can-serial-baud-rate". device.Open never parses os.Args
// itself; callers own the FlagSet and call fs.Parse before Config().
func RegisterFlags(fs *flag.FlagSet, group string, schema Schema) *Binding {
	b := &Binding{schema: schema, group: group, values: make(map[string]*string, len(schema))}
	for _, spec := range schema {
		flagName := fmt.Sprintf("%s-%s", group, spec.Name)
		b.values[spec.Name] = fs.String(flagName, spec.Default, spec.Description)
	}
	return b
}

// Config builds and validates a Config from the bound flag values. Call
// after fs.Parse has run.
func (b *Binding) Config() (*Config, error) {
	cfg := NewConfig(b.schema)
	for _, spec := range b.schema {
		if err := cfg.Set(spec.Name, *b.values[spec.Name]); err != nil {
			return nil, fmt.Errorf("flag --%s-%s: %w", b.group, spec.Name, err)
		}
	}
	return cfg, nil
}
