// Package handlers implements the bot's commands and component listeners.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"popmap/internal/catalog"
	"popmap/internal/customid"
	"popmap/internal/domain"
)

// menuLimit is the gateway's cap on options per select menu and rowLimit its
// cap on action rows per message.
const (
	menuLimit = 25
	rowLimit  = 5
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Store   domain.Store
	Catalog *catalog.Catalog
	Logger  *slog.Logger

	WebsiteURL    string
	GithubURL     string
	SupportInvite string
	// OwnerID is the bot owner's user ID; owner-only commands refuse everyone else.
	OwnerID string
	// OwnerGuildIDs scopes owner commands. Owner commands are not registered when empty.
	OwnerGuildIDs []string
}

// ensureUser creates the user record on first contact without touching an
// existing role.
func ensureUser(ctx context.Context, s domain.Store, id string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u != nil {
		return nil
	}
	if err := s.UpsertUser(ctx, domain.User{ID: id, Role: domain.RoleUser}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// menuRows splits options over as many select menus as needed, one per row.
// Options beyond what fits in a message are dropped.
func menuRows(options []domain.MenuOption, placeholder string, id func(part int) customid.Payload) []domain.ActionRow {
	parts := min((len(options)+menuLimit-1)/menuLimit, rowLimit)
	var rows []domain.ActionRow
	for part := 0; part < parts; part++ {
		n := min(len(options), menuLimit)
		label := placeholder
		if parts > 1 {
			label = fmt.Sprintf("%s (%d/%d)", placeholder, part+1, parts)
		}
		rows = append(rows, domain.ActionRow{Menu: &domain.SelectMenu{
			CustomID:    customid.MustEncode(id(part)),
			Placeholder: label,
			Options:     options[:n],
		}})
		options = options[n:]
	}
	return rows
}

func firstValue(ev *domain.Event) (string, bool) {
	if len(ev.Values) == 0 || ev.Values[0] == "" {
		return "", false
	}
	return ev.Values[0], true
}
