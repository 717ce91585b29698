package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
)

// CommandSource provides the application command payloads to register.
type CommandSource interface {
	Definitions() []*discordgo.ApplicationCommand
	GuildDefinitions() map[string][]*discordgo.ApplicationCommand
}

// commandOverwriter is the part of *discordgo.Session used for registration.
type commandOverwriter interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

func newRegistrationBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// registerCommands overwrites the global command set and then each guild's
// set. Rate limits and server errors are retried; client errors are not.
func registerCommands(ctx context.Context, api commandOverwriter, appID string, src CommandSource, b backoff.BackOff, logger *slog.Logger) error {
	if src == nil {
		return nil
	}

	overwrite := func(guildID string, defs []*discordgo.ApplicationCommand) error {
		attempt := 0
		op := func() error {
			attempt++
			_, err := api.ApplicationCommandBulkOverwrite(appID, guildID, defs, discordgo.WithContext(ctx))
			if err != nil && !retryable(err) {
				return backoff.Permanent(err)
			}
			if err != nil {
				logger.Warn("command registration attempt failed", "guild_id", guildID, "attempt", attempt, "err", err)
			}
			return err
		}
		b.Reset()
		if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
			scope := "global"
			if guildID != "" {
				scope = "guild " + guildID
			}
			return fmt.Errorf("register %s commands: %w", scope, err)
		}
		logger.Info("registered commands", "guild_id", guildID, "count", len(defs))
		return nil
	}

	var errs []error
	if err := overwrite("", src.Definitions()); err != nil {
		errs = append(errs, err)
	}
	for guildID, defs := range src.GuildDefinitions() {
		if err := overwrite(guildID, defs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func retryable(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return true
	}
	code := rest.Response.StatusCode
	return code == http.StatusTooManyRequests || code >= 500
}
