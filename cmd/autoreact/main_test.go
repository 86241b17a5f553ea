package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAutoreactCommand(t *testing.T) {
	cmd := NewAutoreactCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "autoreact", cmd.Use)
	assert.True(t, cmd.HasSubCommands())
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	for _, name := range []string{"auth", "bot", "serve", "rules", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}
