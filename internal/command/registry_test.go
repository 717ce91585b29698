package command

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popmap/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noop(context.Context, *domain.Event) error { return nil }

func TestNewRegistry_ResolveByExactName(t *testing.T) {
	reg, err := NewRegistry(testLogger(),
		Command{Name: "help", Description: "Information about this bot.", Execute: noop},
		Command{Name: "set-location", Description: "Set your location.", GuildOnly: true, Execute: noop},
	)
	require.NoError(t, err)

	c, ok := reg.Resolve("help")
	require.True(t, ok)
	assert.Equal(t, "help", c.Name)

	_, ok = reg.Resolve("Help")
	assert.False(t, ok, "lookup is case sensitive")
	_, ok = reg.Resolve("map")
	assert.False(t, ok)

	assert.Equal(t, []string{"help", "set-location"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	_, err := NewRegistry(testLogger(),
		Command{Name: "help", Execute: noop},
		Command{Name: "help", Execute: noop},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate command name "help"`)
}

func TestNewRegistry_Malformed(t *testing.T) {
	_, err := NewRegistry(testLogger(), Command{Name: "help"})
	require.Error(t, err)

	_, err = NewRegistry(testLogger(), Command{Execute: noop})
	require.Error(t, err)
}

func TestRegistry_DefinitionsByScope(t *testing.T) {
	reg, err := NewRegistry(nil,
		Command{Name: "help", Description: "Info", Execute: noop},
		Command{
			Name:        "promote",
			Description: "Promote a user.",
			GuildIDs:    []string{"support", "personal"},
			GuildOnly:   true,
			Options:     []Option{{Name: "user-id", Description: "User ID", Required: true}},
			Execute:     noop,
		},
	)
	require.NoError(t, err)

	global := reg.Definitions()
	require.Len(t, global, 1)
	assert.Equal(t, "help", global[0].Name)
	require.NotNil(t, global[0].DMPermission)
	assert.True(t, *global[0].DMPermission)

	scoped := reg.GuildDefinitions()
	require.Len(t, scoped, 2)
	for _, gid := range []string{"support", "personal"} {
		defs := scoped[gid]
		require.Len(t, defs, 1)
		assert.Equal(t, "promote", defs[0].Name)
		assert.False(t, *defs[0].DMPermission)
		require.Len(t, defs[0].Options, 1)
		assert.True(t, defs[0].Options[0].Required)
	}
	assert.Equal(t, []string{"personal", "support"}, reg.GuildIDs())
}
