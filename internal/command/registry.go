// Package command holds the slash commands the bot answers, keyed by name.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"popmap/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// Option is a string option of a slash command.
type Option struct {
	Name        string
	Description string
	Required    bool
}

// Command is a directly invoked, name-addressed action.
type Command struct {
	Name        string
	Description string
	// GuildIDs restricts the command to these communities; empty means global.
	GuildIDs []string
	// GuildOnly hides the command from direct messages.
	GuildOnly bool
	Options   []Option
	Execute   func(ctx context.Context, ev *domain.Event) error
}

// Global reports whether the command is visible everywhere.
func (c Command) Global() bool { return len(c.GuildIDs) == 0 }

// Definition renders the command for the gateway's registration handshake.
func (c Command) Definition() *discordgo.ApplicationCommand {
	dm := !c.GuildOnly
	def := &discordgo.ApplicationCommand{
		Type:         discordgo.ChatApplicationCommand,
		Name:         c.Name,
		Description:  c.Description,
		DMPermission: &dm,
	}
	for _, o := range c.Options {
		def.Options = append(def.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		})
	}
	return def
}

// Registry holds the commands known to the bot. It is immutable after
// NewRegistry returns and safe for concurrent reads.
type Registry struct {
	commands map[string]Command
	order    []string
}

// NewRegistry builds a registry, rejecting duplicate or incomplete commands.
func NewRegistry(logger *slog.Logger, cmds ...Command) (*Registry, error) {
	r := &Registry{commands: make(map[string]Command, len(cmds))}
	for _, c := range cmds {
		if c.Name == "" || c.Execute == nil {
			return nil, fmt.Errorf("malformed command %q: name and executor are required", c.Name)
		}
		if _, dup := r.commands[c.Name]; dup {
			return nil, fmt.Errorf("duplicate command name %q", c.Name)
		}
		r.commands[c.Name] = c
		r.order = append(r.order, c.Name)
		if logger != nil {
			logger.Debug("registered command", "name", c.Name, "global", c.Global())
		}
	}
	return r, nil
}

// Resolve looks a command up by exact name.
func (r *Registry) Resolve(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Names returns command names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered commands.
func (r *Registry) Len() int { return len(r.order) }

// Definitions returns the global commands' registration payload.
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		if c := r.commands[name]; c.Global() {
			defs = append(defs, c.Definition())
		}
	}
	return defs
}

// GuildDefinitions returns the registration payload of scoped commands, per community.
func (r *Registry) GuildDefinitions() map[string][]*discordgo.ApplicationCommand {
	out := make(map[string][]*discordgo.ApplicationCommand)
	for _, name := range r.order {
		c := r.commands[name]
		for _, gid := range c.GuildIDs {
			out[gid] = append(out[gid], c.Definition())
		}
	}
	return out
}

// GuildIDs returns the sorted community IDs that have scoped commands.
func (r *Registry) GuildIDs() []string {
	defs := r.GuildDefinitions()
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
