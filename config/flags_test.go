package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFlagsAndConfig(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	binding := RegisterFlags(fs, "can", SerialSchema)

	require.NoError(t, fs.Parse([]string{"-can-serial-baud-rate", "115200", "-can-serial-parity", "even"}))

	cfg, err := binding.Config()
	require.NoError(t, err)

	baud, err := cfg.GetInt("serial-baud-rate")
	require.NoError(t, err)
	assert.Equal(t, 115200, baud)

	parity, err := cfg.GetString("serial-parity")
	require.NoError(t, err)
	assert.Equal(t, "even", parity)
}

func TestRegisterFlagsRejectsInvalidValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	binding := RegisterFlags(fs, "can", SerialSchema)

	require.NoError(t, fs.Parse([]string{"-can-serial-parity", "bogus"}))
	_, err := binding.Config()
	require.Error(t, err)
}
