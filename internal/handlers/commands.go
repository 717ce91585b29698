package handlers

import (
	"context"
	"fmt"
	"strings"

	"popmap/internal/apperr"
	"popmap/internal/command"
	"popmap/internal/customid"
	"popmap/internal/domain"
	"popmap/internal/notify"
)

const aboutText = "The Population Map Bot draws a map of where a server's members live. " +
	"Maps are built from locations that members report themselves.\n\n" +
	"Each server gets its own map. Members use `/set-location` to add their country and, " +
	"optionally, a subdivision (state, region, prefecture, etc.). Use `/remove-location` " +
	"anywhere to take your location off a server's map."

// Commands returns every slash command. Owner commands are included only
// when owner guilds are configured.
func Commands(d Deps) []command.Command {
	cmds := []command.Command{
		helpCommand(d),
		setLocationCommand(d),
		removeLocationCommand(d),
	}
	if len(d.OwnerGuildIDs) > 0 {
		cmds = append(cmds, promoteCommand(d))
	}
	return cmds
}

func helpCommand(d Deps) command.Command {
	return command.Command{
		Name:        "help",
		Description: "Information about this bot.",
		Execute: func(ctx context.Context, ev *domain.Event) error {
			info := notify.Info("", aboutText)
			if d.OwnerID != "" {
				info.Fields = append(info.Fields, domain.Field{Name: "Contact the Creator:", Value: "<@" + d.OwnerID + ">"})
			}

			rows := []domain.ActionRow{{Buttons: []domain.Button{
				{Label: "User Docs", Style: domain.ButtonPrimary, CustomID: customid.MustEncode(customid.HelpUsers{})},
				{Label: "Server Owner Docs", Style: domain.ButtonPrimary, CustomID: customid.MustEncode(customid.HelpOwners{})},
			}}}

			var links []domain.Button
			if d.WebsiteURL != "" {
				links = append(links, domain.Button{Label: "Website", Style: domain.ButtonLink, URL: d.WebsiteURL})
			}
			if d.GithubURL != "" {
				links = append(links, domain.Button{Label: "GitHub", Style: domain.ButtonLink, URL: d.GithubURL})
			}
			if d.SupportInvite != "" {
				links = append(links, domain.Button{Label: "Server", Style: domain.ButtonLink, URL: d.SupportInvite})
			}
			if len(links) > 0 {
				rows = append(rows, domain.ActionRow{Buttons: links})
			}

			if ev.InGuild() && d.WebsiteURL != "" {
				base := fmt.Sprintf("%s/maps/%s", strings.TrimRight(d.WebsiteURL, "/"), ev.GuildID)
				rows = append(rows, domain.ActionRow{Buttons: []domain.Button{
					{Label: "World Map", Style: domain.ButtonLink, URL: base + "?mapCode=WORLD"},
					{Label: "Continents Map", Style: domain.ButtonLink, URL: base + "?mapCode=CONTINENTS"},
				}})
			}

			return ev.Reply(ctx, domain.Reply{
				Notifications: []domain.Notification{info},
				Rows:          rows,
				Ephemeral:     true,
			})
		},
	}
}

func setLocationCommand(d Deps) command.Command {
	return command.Command{
		Name:        "set-location",
		Description: "Set your country and optionally your subdivision (state, region, prefecture, etc).",
		GuildOnly:   true,
		Execute: func(ctx context.Context, ev *domain.Event) error {
			if !ev.InGuild() {
				return apperr.Forbidden("This command only works in a server.")
			}
			guild, err := d.Store.GetGuild(ctx, ev.GuildID)
			if err != nil {
				return fmt.Errorf("get guild: %w", err)
			}
			if guild == nil {
				return apperr.NotFound("This server hasn't been set up.")
			}

			return ev.Reply(ctx, notify.InfoReply("", "What letter does your country start with?", letterRows(d)...))
		},
	}
}

// letterRows splits the alphabet of country initials over two menus.
func letterRows(d Deps) []domain.ActionRow {
	letters := d.Catalog.Letters()
	half := (len(letters) + 1) / 2

	var rows []domain.ActionRow
	for row, group := range [][]string{letters[:half], letters[half:]} {
		if len(group) == 0 {
			continue
		}
		opts := make([]domain.MenuOption, 0, len(group))
		for _, l := range group {
			opts = append(opts, domain.MenuOption{Label: l, Value: l})
		}
		rows = append(rows, domain.ActionRow{Menu: &domain.SelectMenu{
			CustomID:    customid.MustEncode(customid.CountryLetter{Row: row}),
			Placeholder: group[0] + " - " + group[len(group)-1],
			Options:     opts,
		}})
	}
	return rows
}

func removeLocationCommand(d Deps) command.Command {
	return command.Command{
		Name:        "remove-location",
		Description: "Remove your location from a server's map.",
		Execute: func(ctx context.Context, ev *domain.Event) error {
			locs, err := d.Store.ListUserLocations(ctx, ev.UserID)
			if err != nil {
				return fmt.Errorf("list locations: %w", err)
			}
			if len(locs) == 0 {
				return apperr.NotFound("You haven't added your location to any servers.")
			}

			opts := make([]domain.MenuOption, 0, min(len(locs), menuLimit))
			for _, loc := range locs[:min(len(locs), menuLimit)] {
				opts = append(opts, domain.MenuOption{
					Label:       orDefault(loc.GuildName, loc.GuildID),
					Value:       loc.GuildID,
					Description: describeLocation(d, loc),
				})
			}

			return ev.Reply(ctx, notify.InfoReply("", "Which server should your location be removed from?",
				domain.ActionRow{Menu: &domain.SelectMenu{
					CustomID:    customid.MustEncode(customid.RemoveLocation{}),
					Placeholder: "Select a server",
					Options:     opts,
				}},
			))
		},
	}
}

func promoteCommand(d Deps) command.Command {
	return command.Command{
		Name:        "promote",
		Description: "[Bot Owner Only] Promote a user.",
		GuildIDs:    d.OwnerGuildIDs,
		GuildOnly:   true,
		Options: []command.Option{
			{Name: "user-id", Description: "The user ID of whoever you want to promote.", Required: true},
		},
		Execute: func(ctx context.Context, ev *domain.Event) error {
			if d.OwnerID == "" || ev.UserID != d.OwnerID {
				return apperr.Forbidden("You are not the bot owner.")
			}

			target, _ := ev.Option("user-id")
			user, err := d.Store.GetUser(ctx, target)
			if err != nil {
				return fmt.Errorf("get user: %w", err)
			}
			if user == nil {
				return apperr.NotFound("User is not in the database.")
			}
			if user.Role == domain.RoleAdmin {
				return apperr.Conflict("They are already an admin.")
			}

			user.Role = domain.RoleAdmin
			if err := d.Store.UpsertUser(ctx, *user); err != nil {
				return fmt.Errorf("promote user: %w", err)
			}
			d.Logger.Info("user promoted", "user_id", user.ID, "by", ev.UserID)

			return ev.Reply(ctx, notify.InfoReply("", "Promoted the user."))
		},
	}
}

// describeLocation renders "Subdivision, Country" using catalog names when known.
func describeLocation(d Deps, loc domain.Location) string {
	country, ok := d.Catalog.Country(loc.CountryCode)
	if !ok {
		return strings.TrimSuffix(loc.CountryCode+", "+loc.SubdivisionCode, ", ")
	}
	if loc.SubdivisionCode == "" {
		return country.Name
	}
	if sub, ok := d.Catalog.Subdivision(loc.CountryCode, loc.SubdivisionCode); ok {
		return sub.Name + ", " + country.Name
	}
	return country.Name
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
