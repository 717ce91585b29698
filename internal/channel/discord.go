package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"popmap/internal/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

const (
	discordMaxMsgLen = 2000
)

// Publisher accepts inbound events for dispatch.
type Publisher interface {
	Publish(ev *domain.Event) bool
}

// GuildRecorder persists the communities the bot is a member of.
type GuildRecorder interface {
	UpsertGuild(ctx context.Context, g domain.Guild) error
}

// Discord connects to the gateway, turns interactions into events and
// registers the application commands once the session is ready.
type Discord struct {
	token    string
	commands CommandSource
	guilds   GuildRecorder
	session  *discordgo.Session
	logger   *slog.Logger

	registerOnce sync.Once
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token    string
	Commands CommandSource
	Guilds   GuildRecorder // optional
	Logger   *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:    cfg.Token,
		commands: cfg.Commands,
		guilds:   cfg.Guilds,
		logger:   cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and publishes interactions
// until ctx is cancelled.
func (d *Discord) Start(ctx context.Context, bus Publisher) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	// Interactions need no intent; guilds feed the state cache and the store.
	session.Identify.Intents = discordgo.IntentsGuilds

	d.session = session

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("discord bot connected", "user", r.User.Username, "guilds", len(r.Guilds))
		d.registerOnce.Do(func() {
			if err := registerCommands(ctx, s, r.User.ID, d.commands, newRegistrationBackOff(), d.logger); err != nil {
				d.logger.Error("command registration failed", "err", err)
			}
		})
	})

	session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if d.guilds == nil || g.Unavailable {
			return
		}
		if err := d.guilds.UpsertGuild(ctx, domain.Guild{ID: g.ID, Name: g.Name}); err != nil {
			d.logger.Error("failed to record guild", "guild_id", g.ID, "err", err)
		}
	})

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		ev, ok := toEvent(i, func(id string) string {
			if g, err := s.State.Guild(id); err == nil {
				return g.Name
			}
			return ""
		})
		if !ok {
			d.logger.Debug("ignoring interaction", "type", i.Type.String())
			return
		}

		d.logger.Debug("discord interaction received",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"user", ev.Username,
			"guild_id", ev.GuildID,
		)

		bus.Publish(domain.NewEvent(ev, &interactionResponder{
			session:     s,
			interaction: i.Interaction,
			logger:      d.logger,
		}))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// toEvent converts an interaction into an event. Kinds the bot does not
// handle (autocomplete, modals, non-string menus) are reported as !ok.
func toEvent(i *discordgo.InteractionCreate, guildName func(string) string) (domain.Event, bool) {
	ev := domain.Event{
		ID:         uuid.NewString(),
		GuildID:    i.GuildID,
		ChannelID:  i.ChannelID,
		ReceivedAt: time.Now(),
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		ev.Kind = domain.KindCommand
		ev.Name = data.Name
		ev.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			if opt.Type == discordgo.ApplicationCommandOptionString {
				ev.Options[opt.Name] = opt.StringValue()
				continue
			}
			ev.Options[opt.Name] = fmt.Sprint(opt.Value)
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.CustomID = data.CustomID
		switch data.ComponentType {
		case discordgo.ButtonComponent:
			ev.Kind = domain.KindButton
		case discordgo.SelectMenuComponent:
			ev.Kind = domain.KindSelectMenu
			ev.Values = data.Values
		default:
			return domain.Event{}, false
		}
	default:
		return domain.Event{}, false
	}

	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID = i.Member.User.ID
		ev.Username = i.Member.User.Username
	case i.User != nil:
		ev.UserID = i.User.ID
		ev.Username = i.User.Username
	}

	if ev.GuildID != "" && guildName != nil {
		ev.GuildName = guildName(ev.GuildID)
	}
	return ev, true
}

// interactionResponder answers one interaction through the REST API.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
	logger      *slog.Logger
}

func (r *interactionResponder) Respond(ctx context.Context, typ domain.ResponseType, reply domain.Reply) error {
	chunks := splitMessage(reply.Content, discordMaxMsgLen)
	first := reply
	first.Content = chunks[0]

	resp := &discordgo.InteractionResponse{Type: responseType(typ)}
	switch typ {
	case domain.ResponseDeferred:
		resp.Data = &discordgo.InteractionResponseData{Flags: messageFlags(reply.Ephemeral)}
	case domain.ResponseUpdate:
		resp.Data = toResponseData(first)
		resp.Data.Flags = 0
		// An update without rows clears the old components instead of keeping them.
		if resp.Data.Components == nil {
			resp.Data.Components = []discordgo.MessageComponent{}
		}
	default:
		resp.Data = toResponseData(first)
	}

	if err := r.session.InteractionRespond(r.interaction, resp, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("interaction respond: %w", err)
	}
	return r.sendRest(ctx, chunks[1:], reply.Ephemeral)
}

func (r *interactionResponder) FollowUp(ctx context.Context, reply domain.Reply) error {
	chunks := splitMessage(reply.Content, discordMaxMsgLen)
	first := reply
	first.Content = chunks[0]

	if _, err := r.session.FollowupMessageCreate(r.interaction, true, toWebhookParams(first), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("interaction follow-up: %w", err)
	}
	return r.sendRest(ctx, chunks[1:], reply.Ephemeral)
}

// sendRest posts the overflow of a long message as plain follow-ups.
func (r *interactionResponder) sendRest(ctx context.Context, chunks []string, ephemeral bool) error {
	for _, chunk := range chunks {
		params := &discordgo.WebhookParams{Content: chunk, Flags: messageFlags(ephemeral)}
		if _, err := r.session.FollowupMessageCreate(r.interaction, true, params, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("interaction follow-up: %w", err)
		}
	}
	return nil
}

func responseType(typ domain.ResponseType) discordgo.InteractionResponseType {
	switch typ {
	case domain.ResponseDeferred:
		return discordgo.InteractionResponseDeferredChannelMessageWithSource
	case domain.ResponseUpdate:
		return discordgo.InteractionResponseUpdateMessage
	default:
		return discordgo.InteractionResponseChannelMessageWithSource
	}
}
