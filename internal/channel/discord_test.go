package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popmap/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// --- toEvent ---

func TestToEvent_Command(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "gopher"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "promote",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "user-id", Type: discordgo.ApplicationCommandOptionString, Value: "42"},
				{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
			},
		},
	}}

	ev, ok := toEvent(i, func(id string) string { return "Guild " + id })
	require.True(t, ok)
	assert.Equal(t, domain.KindCommand, ev.Kind)
	assert.Equal(t, "promote", ev.Name)
	assert.Equal(t, map[string]string{"user-id": "42", "count": "3"}, ev.Options)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "gopher", ev.Username)
	assert.Equal(t, "Guild g1", ev.GuildName)
	assert.NotEmpty(t, ev.ID, "generated event id")
}

func TestToEvent_DirectMessageUsesUser(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "u2", Username: "dm"},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      `{"type":"help-users","data":{}}`,
			ComponentType: discordgo.ButtonComponent,
		},
	}}

	called := false
	ev, ok := toEvent(i, func(string) string { called = true; return "" })
	require.True(t, ok)
	assert.Equal(t, domain.KindButton, ev.Kind)
	assert.Equal(t, "u2", ev.UserID)
	assert.False(t, ev.InGuild())
	assert.False(t, called, "guild name lookup skipped outside guilds")
}

func TestToEvent_SelectMenuValues(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      `{"type":"remove-location","data":{}}`,
			ComponentType: discordgo.SelectMenuComponent,
			Values:        []string{"g9"},
		},
	}}

	ev, ok := toEvent(i, nil)
	require.True(t, ok)
	assert.Equal(t, domain.KindSelectMenu, ev.Kind)
	assert.Equal(t, []string{"g9"}, ev.Values)
}

func TestToEvent_IgnoresUnhandledKinds(t *testing.T) {
	cases := []*discordgo.InteractionCreate{
		{Interaction: &discordgo.Interaction{Type: discordgo.InteractionApplicationCommandAutocomplete}},
		{Interaction: &discordgo.Interaction{Type: discordgo.InteractionModalSubmit}},
		{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{ComponentType: discordgo.UserSelectMenuComponent},
		}},
	}
	for _, i := range cases {
		_, ok := toEvent(i, nil)
		assert.False(t, ok, "%s should be ignored", i.Type)
	}
}

// --- registerCommands ---

type fakeOverwriter struct {
	failures map[string][]error
	calls    map[string]int
}

func (f *fakeOverwriter) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.calls[guildID]++
	if errs := f.failures[guildID]; len(errs) > 0 {
		f.failures[guildID] = errs[1:]
		return nil, errs[0]
	}
	return cmds, nil
}

type staticSource struct {
	global []*discordgo.ApplicationCommand
	guild  map[string][]*discordgo.ApplicationCommand
}

func (s staticSource) Definitions() []*discordgo.ApplicationCommand { return s.global }
func (s staticSource) GuildDefinitions() map[string][]*discordgo.ApplicationCommand {
	return s.guild
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func TestRegisterCommands_RetriesTransientFailures(t *testing.T) {
	api := &fakeOverwriter{
		failures: map[string][]error{"": {restError(http.StatusTooManyRequests), errors.New("connection reset")}},
		calls:    map[string]int{},
	}
	src := staticSource{
		global: []*discordgo.ApplicationCommand{{Name: "help"}},
		guild:  map[string][]*discordgo.ApplicationCommand{"g1": {{Name: "promote"}}},
	}

	err := registerCommands(context.Background(), api, "app", src, &backoff.ZeroBackOff{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, api.calls[""], "global attempts")
	assert.Equal(t, 1, api.calls["g1"], "guild attempts")
}

func TestRegisterCommands_ClientErrorIsPermanent(t *testing.T) {
	api := &fakeOverwriter{
		failures: map[string][]error{"g1": {restError(http.StatusForbidden), restError(http.StatusForbidden)}},
		calls:    map[string]int{},
	}
	src := staticSource{
		guild: map[string][]*discordgo.ApplicationCommand{"g1": {{Name: "promote"}}},
	}

	err := registerCommands(context.Background(), api, "app", src, &backoff.ZeroBackOff{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guild g1")
	assert.Equal(t, 1, api.calls["g1"], "no retry on 403")
	assert.Equal(t, 1, api.calls[""], "global registration still runs")
}

func TestRegisterCommands_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakeOverwriter{
		failures: map[string][]error{"": {errors.New("down"), errors.New("down"), errors.New("down")}},
		calls:    map[string]int{},
	}
	err := registerCommands(ctx, api, "app", staticSource{}, &backoff.ZeroBackOff{}, testLogger())
	assert.Error(t, err)
}
