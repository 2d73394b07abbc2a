// Package config implements the typed, schema-validated configuration
// store described in spec section 3 and section 6: a mapping from
// parameter name to a typed value (string, int, float or enum),
// validated against a declared schema (name, type, default, range or
// choices, description). Values are loaded from an ini file
// (gopkg.in/ini.v1) or bound to a standard library flag.FlagSet, mirroring
// the way the teacher loads EDS files in od_parser.go and the way
// kstaniek-go-ampio-server/cmd/can-server/config.go parses flags with an
// explicit validate() pass.
package config

import (
	"errors"
	"fmt"
	"strconv"
)

func newConfigError(msg string) error {
	return errors.New(msg)
}

// Type is the declared type of a configuration parameter.
type Type int

const (
	String Type = iota
	Int
	Float
	Enum
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Enum:
		return "enum"
	default:
		return "unknown"
	}
}

// Spec declares one recognised parameter: its type, default, the
// validation range (Int/Float) or accepted choices (Enum), and a
// human-readable description surfaced by CLI help text.
type Spec struct {
	Name        string
	Type        Type
	Default     string
	Min, Max    float64 // Int/Float only
	Choices     []string
	Description string
}

// Schema is a declared, ordered set of parameter specs.
type Schema []Spec

func (s Schema) find(name string) (Spec, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec, true
		}
	}
	return Spec{}, false
}

// Config is a validated name -> raw-string-value store. Values are kept
// as strings and converted on read, the way ini.v1 and flag both hand
// back strings; validation happens once, at Set time.
type Config struct {
	schema Schema
	values map[string]string
}

// NewConfig builds a Config pre-populated with the schema's defaults.
// Defaults are assumed to satisfy the schema and are not re-validated.
func NewConfig(schema Schema) *Config {
	c := &Config{schema: schema, values: make(map[string]string, len(schema))}
	for _, spec := range schema {
		c.values[spec.Name] = spec.Default
	}
	return c
}

// Set validates value against the named parameter's schema entry and
// stores it. Unknown parameter names fail with an error.
func (c *Config) Set(name, value string) error {
	spec, ok := c.schema.find(name)
	if !ok {
		return newConfigError(fmt.Sprintf("unknown parameter %q", name))
	}
	switch spec.Type {
	case String:
		// no further validation
	case Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return newConfigError(fmt.Sprintf("%s: not an integer: %q", name, value))
		}
		if float64(n) < spec.Min || float64(n) > spec.Max {
			return newConfigError(fmt.Sprintf("%s: %d out of range [%g, %g]", name, n, spec.Min, spec.Max))
		}
	case Float:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return newConfigError(fmt.Sprintf("%s: not a float: %q", name, value))
		}
		if f < spec.Min || f > spec.Max {
			return newConfigError(fmt.Sprintf("%s: %g out of range [%g, %g]", name, f, spec.Min, spec.Max))
		}
	case Enum:
		ok := false
		for _, choice := range spec.Choices {
			if choice == value {
				ok = true
				break
			}
		}
		if !ok {
			return newConfigError(fmt.Sprintf("%s: %q not one of %v", name, value, spec.Choices))
		}
	}
	c.values[name] = value
	return nil
}

// GetString returns the raw value of a string or enum parameter.
func (c *Config) GetString(name string) (string, error) {
	v, ok := c.values[name]
	if !ok {
		return "", newConfigError(fmt.Sprintf("unknown parameter %q", name))
	}
	return v, nil
}

// GetInt parses and returns an int parameter's value.
func (c *Config) GetInt(name string) (int, error) {
	v, err := c.GetString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, newConfigError(fmt.Sprintf("%s: not an integer: %q", name, v))
	}
	return n, nil
}

// GetFloat parses and returns a float parameter's value.
func (c *Config) GetFloat(name string) (float64, error) {
	v, err := c.GetString(name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, newConfigError(fmt.Sprintf("%s: not a float: %q", name, v))
	}
	return f, nil
}

// Schema returns the declared schema backing this Config.
func (c *Config) Schema() Schema {
	return c.schema
}
