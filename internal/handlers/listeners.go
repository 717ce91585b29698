package handlers

import (
	"context"
	"fmt"

	"popmap/internal/apperr"
	"popmap/internal/customid"
	"popmap/internal/domain"
	"popmap/internal/listener"
	"popmap/internal/notify"
)

const userDocs = "# User Docs\n" +
	"Countries and subdivisions are from [ISO 3166](https://www.iso.org/iso-3166-country-codes.html).\n" +
	"### Location\n" +
	"Save your location in a server with `/set-location`. Pick your country and optionally your " +
	"subdivision (state, region, prefecture, etc). Locations are per server and are never shared " +
	"with other servers. Use `/remove-location` anywhere to take your location off any map."

const ownerDocs = "# Server Owner Docs\n" +
	"The bot sets up a map for your server when it joins. Members add themselves with " +
	"`/set-location`; nobody appears on the map until they do.\n" +
	"### Map\n" +
	"Use `/help` inside your server for links to its world and continent maps."

// Listeners returns the component listeners, one per action identifier type.
func Listeners(d Deps) []listener.Listener {
	return []listener.Listener{
		listener.ForTag(domain.KindButton, func(ctx context.Context, ev *domain.Event, _ customid.HelpUsers) error {
			return ev.Reply(ctx, notify.InfoReply("", userDocs))
		}),
		listener.ForTag(domain.KindButton, func(ctx context.Context, ev *domain.Event, _ customid.HelpOwners) error {
			return ev.Reply(ctx, notify.InfoReply("", ownerDocs))
		}),
		listener.ForTag(domain.KindSelectMenu, d.countryLetter),
		listener.ForTag(domain.KindSelectMenu, d.locationCountry),
		listener.ForTag(domain.KindSelectMenu, d.locationSubdivision),
		listener.ForTag(domain.KindSelectMenu, d.removeLocation),
		listener.ForTag(domain.KindButton, d.removeLocationConfirmation),
	}
}

// countryLetter replaces the letter menus with the countries starting with
// the chosen letter.
func (d Deps) countryLetter(ctx context.Context, ev *domain.Event, _ customid.CountryLetter) error {
	letter, ok := firstValue(ev)
	if !ok {
		return apperr.New(apperr.KindInternal, "No letter was selected.")
	}
	countries := d.Catalog.StartingWith(letter)
	if len(countries) == 0 {
		return apperr.NotFound(fmt.Sprintf("No countries start with %s.", letter))
	}

	opts := make([]domain.MenuOption, 0, len(countries))
	for _, c := range countries {
		opts = append(opts, domain.MenuOption{Label: c.Name, Value: c.Code})
	}
	rows := menuRows(opts, "Select your country", func(part int) customid.Payload {
		return customid.LocationCountry{Part: part}
	})
	return ev.Update(ctx, notify.InfoReply("", "Select your country.", rows...))
}

// locationCountry saves the country and offers its subdivisions, if any.
func (d Deps) locationCountry(ctx context.Context, ev *domain.Event, _ customid.LocationCountry) error {
	code, ok := firstValue(ev)
	if !ok {
		return apperr.New(apperr.KindInternal, "No country was selected.")
	}
	country, ok := d.Catalog.Country(code)
	if !ok {
		return apperr.NotFound("That country isn't in the list.")
	}
	if err := d.saveLocation(ctx, ev, country.Code, ""); err != nil {
		return err
	}

	if len(country.Subdivisions) == 0 {
		return ev.Update(ctx, notify.InfoReply("Location saved", country.Name))
	}

	opts := make([]domain.MenuOption, 0, len(country.Subdivisions))
	for _, s := range country.Subdivisions {
		opts = append(opts, domain.MenuOption{Label: s.Name, Value: s.Code})
	}
	rows := menuRows(opts, "Select your subdivision", func(part int) customid.Payload {
		return customid.LocationSubdivision{Country: country.Code, Part: part}
	})
	return ev.Update(ctx, notify.InfoReply("Location saved",
		country.Name+"\nYou can also pick your subdivision.", rows...))
}

func (d Deps) locationSubdivision(ctx context.Context, ev *domain.Event, data customid.LocationSubdivision) error {
	code, ok := firstValue(ev)
	if !ok {
		return apperr.New(apperr.KindInternal, "No subdivision was selected.")
	}
	country, ok := d.Catalog.Country(data.Country)
	if !ok {
		return apperr.NotFound("That country isn't in the list.")
	}
	sub, ok := d.Catalog.Subdivision(country.Code, code)
	if !ok {
		return apperr.NotFound("That subdivision isn't in the list.")
	}
	if err := d.saveLocation(ctx, ev, country.Code, sub.Code); err != nil {
		return err
	}
	return ev.Update(ctx, notify.InfoReply("Location saved", sub.Name+", "+country.Name))
}

func (d Deps) saveLocation(ctx context.Context, ev *domain.Event, countryCode, subdivisionCode string) error {
	if !ev.InGuild() {
		return apperr.Forbidden("Locations can only be set inside a server.")
	}
	guild, err := d.Store.GetGuild(ctx, ev.GuildID)
	if err != nil {
		return fmt.Errorf("get guild: %w", err)
	}
	if guild == nil {
		return apperr.NotFound("This server hasn't been set up.")
	}
	if err := ensureUser(ctx, d.Store, ev.UserID); err != nil {
		return err
	}
	if err := d.Store.SetLocation(ctx, domain.Location{
		GuildID:         ev.GuildID,
		UserID:          ev.UserID,
		CountryCode:     countryCode,
		SubdivisionCode: subdivisionCode,
	}); err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	d.Logger.Debug("location saved", "guild_id", ev.GuildID, "user_id", ev.UserID, "country", countryCode, "subdivision", subdivisionCode)
	return nil
}

// removeLocation asks for confirmation in place of the server menu.
func (d Deps) removeLocation(ctx context.Context, ev *domain.Event, _ customid.RemoveLocation) error {
	guildID, ok := firstValue(ev)
	if !ok {
		return apperr.New(apperr.KindInternal, "No server was selected.")
	}
	loc, err := d.Store.GetLocation(ctx, guildID, ev.UserID)
	if err != nil {
		return fmt.Errorf("get location: %w", err)
	}
	if loc == nil {
		return apperr.NotFound("Your location isn't on that server's map.")
	}

	confirm := domain.Notification{
		Level:   domain.LevelInfo,
		Title:   orDefault(loc.GuildName, guildID),
		Message: describeLocation(d, *loc),
		Footer:  "ID: " + guildID,
	}
	return ev.Update(ctx, domain.Reply{
		Notifications: []domain.Notification{confirm},
		Rows: []domain.ActionRow{{Buttons: []domain.Button{{
			Label:    "Remove Location?",
			Style:    domain.ButtonDanger,
			CustomID: customid.MustEncode(customid.RemoveLocationConfirmation{GuildID: guildID}),
		}}}},
		Ephemeral: true,
	})
}

func (d Deps) removeLocationConfirmation(ctx context.Context, ev *domain.Event, data customid.RemoveLocationConfirmation) error {
	removed, err := d.Store.DeleteLocation(ctx, data.GuildID, ev.UserID)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if !removed {
		return apperr.NotFound("Your location isn't on that server's map.")
	}
	d.Logger.Info("location removed", "guild_id", data.GuildID, "user_id", ev.UserID)
	return ev.Update(ctx, notify.InfoReply("", "Removed your location."))
}
