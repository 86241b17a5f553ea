package rules

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/pkg/config"
	"github.com/tinyland-inc/autoreact/pkg/rules"
)

func TestNewRulesCommand(t *testing.T) {
	cmd := NewRulesCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "rules", cmd.Use)
	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())
	assert.Nil(t, cmd.RunE)

	list, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "list", list.Use)
	assert.NotNil(t, list.Flags().Lookup("json"))

	add, _, err := cmd.Find([]string{"add"})
	require.NoError(t, err)
	for _, name := range []string{"name", "chat", "sender", "emoji", "keyword", "probability", "cooldown"} {
		assert.NotNil(t, add.Flags().Lookup(name), name)
	}
}

// useTempConfig points the CLI at a config whose storage lives in a temp dir.
func useTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Dir = dir
	path := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(path, cfg))

	prev := internal.ConfigPath
	internal.ConfigPath = path
	t.Cleanup(func() { internal.ConfigPath = prev })
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRulesCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddAndList(t *testing.T) {
	dir := useTempConfig(t)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No rules configured.")

	out, err = run(t, "add", "--name", "laugh", "--emoji", "😂", "--emoji", "🤣", "--keyword", "haha", "--cooldown", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule added: laugh")

	data, err := os.ReadFile(filepath.Join(dir, "rules.json"))
	require.NoError(t, err)
	var stored []rules.Rule
	require.NoError(t, json.Unmarshal(data, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, rules.EmojiSet{"😂", "🤣"}, stored[0].Emojis)
	assert.Nil(t, stored[0].Probability, "unset flags stay absent")
	assert.Nil(t, stored[0].ChatID)
	require.NotNil(t, stored[0].Cooldown)
	assert.Equal(t, 10, *stored[0].Cooldown)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1. laugh  😂 🤣")
	assert.Contains(t, out, "keywords: haha")
	assert.Contains(t, out, "cooldown: 10s")

	out, err = run(t, "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "laugh"`)
}

func TestAdd_Invalid(t *testing.T) {
	useTempConfig(t)

	_, err := run(t, "add", "--name", "odds", "--emoji", "🔥", "--probability", "1.5")
	assert.ErrorIs(t, err, rules.ErrInvalidRule)

	_, err = run(t, "add", "--name", "no-emoji")
	assert.Error(t, err, "emoji is required")
}
