package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popmap/internal/catalog"
	"popmap/internal/command"
	"popmap/internal/customid"
	"popmap/internal/dispatch"
	"popmap/internal/domain"
	"popmap/internal/listener"
	"popmap/internal/store"
)

type sent struct {
	typ   domain.ResponseType
	reply domain.Reply
}

type recordingResponder struct {
	mu        sync.Mutex
	responses []sent
	followUps []domain.Reply
}

func (r *recordingResponder) Respond(_ context.Context, typ domain.ResponseType, reply domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, sent{typ, reply})
	return nil
}

func (r *recordingResponder) FollowUp(_ context.Context, reply domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followUps = append(r.followUps, reply)
	return nil
}

func (r *recordingResponder) only(t *testing.T) sent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.responses, 1)
	return r.responses[0]
}

type fixture struct {
	deps  Deps
	store *store.SQLiteStore
	d     *dispatch.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "popmap.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)

	deps := Deps{
		Store:         s,
		Catalog:       cat,
		Logger:        logger,
		WebsiteURL:    "https://popmap.example.org/",
		GithubURL:     "https://github.com/popmap/popmap",
		OwnerID:       "owner",
		OwnerGuildIDs: []string{"support"},
	}

	cmds, err := command.NewRegistry(logger, Commands(deps)...)
	require.NoError(t, err)
	ls, err := listener.NewRegistry(logger, Listeners(deps)...)
	require.NoError(t, err)

	return &fixture{
		deps:  deps,
		store: s,
		d: dispatch.New(dispatch.Config{
			Commands:       cmds,
			Listeners:      ls,
			Logger:         logger,
			HandlerTimeout: 5 * time.Second,
		}),
	}
}

func (f *fixture) send(t *testing.T, ev domain.Event) (dispatch.Result, *recordingResponder) {
	t.Helper()
	r := &recordingResponder{}
	if ev.UserID == "" {
		ev.UserID = "u1"
	}
	res := f.d.Dispatch(context.Background(), domain.NewEvent(ev, r))
	return res, r
}

func (f *fixture) setupGuild(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.store.UpsertGuild(context.Background(), domain.Guild{ID: id, Name: name}))
}

func assertFailure(t *testing.T, res dispatch.Result, r *recordingResponder, status int, message string) {
	t.Helper()
	assert.Equal(t, dispatch.OutcomeFailed, res.Outcome)
	reply := r.only(t).reply
	require.Len(t, reply.Notifications, 1)
	n := reply.Notifications[0]
	assert.Equal(t, domain.LevelError, n.Level)
	assert.Equal(t, status, n.Status)
	assert.Equal(t, message, n.Message)
}

func menuAt(t *testing.T, reply domain.Reply, row int) *domain.SelectMenu {
	t.Helper()
	require.Greater(t, len(reply.Rows), row)
	require.NotNil(t, reply.Rows[row].Menu)
	return reply.Rows[row].Menu
}

func TestRegistries_AcceptHandlerSet(t *testing.T) {
	deps := Deps{OwnerGuildIDs: []string{"support"}}

	cmds, err := command.NewRegistry(nil, Commands(deps)...)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"help", "set-location", "remove-location", "promote"}, cmds.Names())
	assert.Len(t, cmds.Definitions(), 3)
	assert.Contains(t, cmds.GuildDefinitions(), "support")

	ls, err := listener.NewRegistry(nil, Listeners(deps)...)
	require.NoError(t, err)
	assert.Equal(t, len(customid.Types()), ls.Len())

	deps.OwnerGuildIDs = nil
	assert.Len(t, Commands(deps), 3)
}

func TestHelp_InGuildAddsMapLinks(t *testing.T) {
	f := newFixture(t)

	res, r := f.send(t, domain.Event{Kind: domain.KindCommand, Name: "help", GuildID: "g1"})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)

	reply := r.only(t).reply
	assert.True(t, reply.Ephemeral)
	require.Len(t, reply.Rows, 3)
	assert.Equal(t, "https://popmap.example.org/maps/g1?mapCode=WORLD", reply.Rows[2].Buttons[0].URL)
	assert.Equal(t, "<@owner>", reply.Notifications[0].Fields[0].Value)

	res, r = f.send(t, domain.Event{Kind: domain.KindCommand, Name: "help"})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	assert.Len(t, r.only(t).reply.Rows, 2)
}

func TestHelpButtons(t *testing.T) {
	f := newFixture(t)

	for _, p := range []customid.Payload{customid.HelpUsers{}, customid.HelpOwners{}} {
		res, r := f.send(t, domain.Event{Kind: domain.KindButton, CustomID: customid.MustEncode(p)})
		require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome, p.ActionType())
		assert.Equal(t, string(p.ActionType()), res.Handler)
		assert.Contains(t, r.only(t).reply.Notifications[0].Message, "Docs")
	}
}

func TestSetLocation_GuildNotSetUp(t *testing.T) {
	f := newFixture(t)

	res, r := f.send(t, domain.Event{Kind: domain.KindCommand, Name: "set-location", GuildID: "g1"})
	assertFailure(t, res, r, http.StatusNotFound, "This server hasn't been set up.")
}

func TestLocationFlow_CountryWithSubdivisions(t *testing.T) {
	f := newFixture(t)
	f.setupGuild(t, "g1", "Gophers")
	ctx := context.Background()

	res, r := f.send(t, domain.Event{Kind: domain.KindCommand, Name: "set-location", GuildID: "g1"})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	letters := r.only(t).reply
	require.Len(t, letters.Rows, 2)
	assert.NotEqual(t, menuAt(t, letters, 0).CustomID, menuAt(t, letters, 1).CustomID)

	res, r = f.send(t, domain.Event{
		Kind:     domain.KindSelectMenu,
		GuildID:  "g1",
		CustomID: menuAt(t, letters, 1).CustomID,
		Values:   []string{"U"},
	})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	countries := r.only(t)
	assert.Equal(t, domain.ResponseUpdate, countries.typ)
	var codes []string
	for _, o := range menuAt(t, countries.reply, 0).Options {
		codes = append(codes, o.Value)
	}
	assert.Contains(t, codes, "US")

	res, r = f.send(t, domain.Event{
		Kind:     domain.KindSelectMenu,
		GuildID:  "g1",
		CustomID: menuAt(t, countries.reply, 0).CustomID,
		Values:   []string{"US"},
	})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	subs := r.only(t).reply
	require.Len(t, subs.Rows, 3, "51 subdivisions split into menus of 25")
	assert.True(t, strings.HasSuffix(menuAt(t, subs, 2).Placeholder, "(3/3)"))

	loc, err := f.store.GetLocation(ctx, "g1", "u1")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "US", loc.CountryCode)
	assert.Empty(t, loc.SubdivisionCode)

	res, _ = f.send(t, domain.Event{
		Kind:     domain.KindSelectMenu,
		GuildID:  "g1",
		CustomID: menuAt(t, subs, 0).CustomID,
		Values:   []string{"US-CA"},
	})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)

	loc, err = f.store.GetLocation(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "US-CA", loc.SubdivisionCode)

	u, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domain.RoleUser, u.Role)
}

func TestLocationCountry_KeepsExistingRole(t *testing.T) {
	f := newFixture(t)
	f.setupGuild(t, "g1", "Gophers")
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUser(ctx, domain.User{ID: "u1", Role: domain.RoleAdmin}))

	res, r := f.send(t, domain.Event{
		Kind:     domain.KindSelectMenu,
		GuildID:  "g1",
		CustomID: customid.MustEncode(customid.LocationCountry{}),
		Values:   []string{"FR"},
	})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	assert.Empty(t, r.only(t).reply.Rows, "France has no subdivisions in the catalog")

	u, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}

func TestLocationSubdivision_RejectsForeignCode(t *testing.T) {
	f := newFixture(t)
	f.setupGuild(t, "g1", "Gophers")

	res, r := f.send(t, domain.Event{
		Kind:     domain.KindSelectMenu,
		GuildID:  "g1",
		CustomID: customid.MustEncode(customid.LocationSubdivision{Country: "CA"}),
		Values:   []string{"US-CA"},
	})
	assertFailure(t, res, r, http.StatusNotFound, "That subdivision isn't in the list.")
}

func TestRemoveLocationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setupGuild(t, "g1", "Gophers")
	require.NoError(t, f.store.SetLocation(ctx, domain.Location{GuildID: "g1", UserID: "u1", CountryCode: "DE", SubdivisionCode: "DE-BE"}))

	res, r := f.send(t, domain.Event{Kind: domain.KindCommand, Name: "remove-location"})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	menu := menuAt(t, r.only(t).reply, 0)
	require.Len(t, menu.Options, 1)
	assert.Equal(t, "Gophers", menu.Options[0].Label)
	assert.Equal(t, "Berlin, Germany", menu.Options[0].Description)

	res, r = f.send(t, domain.Event{Kind: domain.KindSelectMenu, CustomID: menu.CustomID, Values: []string{"g1"}})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "remove-location", res.Handler)
	confirm := r.only(t)
	assert.Equal(t, domain.ResponseUpdate, confirm.typ)
	button := confirm.reply.Rows[0].Buttons[0]
	assert.Equal(t, "ID: g1", confirm.reply.Notifications[0].Footer)

	res, _ = f.send(t, domain.Event{Kind: domain.KindButton, CustomID: button.CustomID})
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "remove-location-confirmation", res.Handler)

	loc, err := f.store.GetLocation(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Nil(t, loc)

	res, r = f.send(t, domain.Event{Kind: domain.KindButton, CustomID: button.CustomID})
	assertFailure(t, res, r, http.StatusNotFound, "Your location isn't on that server's map.")
}

func TestRemoveLocation_NothingToRemove(t *testing.T) {
	f := newFixture(t)

	res, r := f.send(t, domain.Event{Kind: domain.KindCommand, Name: "remove-location"})
	assertFailure(t, res, r, http.StatusNotFound, "You haven't added your location to any servers.")
}

func TestPromote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	promote := func(caller, target string) (dispatch.Result, *recordingResponder) {
		return f.send(t, domain.Event{
			Kind:    domain.KindCommand,
			Name:    "promote",
			GuildID: "support",
			UserID:  caller,
			Options: map[string]string{"user-id": target},
		})
	}

	res, r := promote("u1", "u2")
	assertFailure(t, res, r, http.StatusForbidden, "You are not the bot owner.")

	res, r = promote("owner", "u2")
	assertFailure(t, res, r, http.StatusNotFound, "User is not in the database.")

	require.NoError(t, f.store.UpsertUser(ctx, domain.User{ID: "u2"}))
	res, r = promote("owner", "u2")
	require.Equal(t, dispatch.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "Promoted the user.", r.only(t).reply.Notifications[0].Message)

	u, err := f.store.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)

	res, r = promote("owner", "u2")
	assertFailure(t, res, r, http.StatusConflict, "They are already an admin.")
}

func TestMenuRows_SplitsAndCaps(t *testing.T) {
	opts := make([]domain.MenuOption, 130)
	rows := menuRows(opts, "Pick", func(part int) customid.Payload {
		return customid.LocationCountry{Part: part}
	})
	require.Len(t, rows, rowLimit)
	assert.Len(t, rows[0].Menu.Options, menuLimit)
	assert.Equal(t, "Pick (1/5)", rows[0].Menu.Placeholder)
	assert.NotEqual(t, rows[0].Menu.CustomID, rows[1].Menu.CustomID)

	single := menuRows(opts[:3], "Pick", func(int) customid.Payload { return customid.LocationCountry{} })
	require.Len(t, single, 1)
	assert.Equal(t, "Pick", single[0].Menu.Placeholder)
}
