package channel

import (
	"strings"
	"unicode/utf8"

	"popmap/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	colorInfo  = 0x2d7dbc
	colorError = 0xd83c3e

	embedMaxDescription = 4096
)

func messageFlags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func toResponseData(r domain.Reply) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:    r.Content,
		Embeds:     toEmbeds(r.Notifications),
		Components: toComponents(r.Rows),
		Flags:      messageFlags(r.Ephemeral),
	}
}

func toWebhookParams(r domain.Reply) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content:    r.Content,
		Embeds:     toEmbeds(r.Notifications),
		Components: toComponents(r.Rows),
		Flags:      messageFlags(r.Ephemeral),
	}
}

func toEmbeds(ns []domain.Notification) []*discordgo.MessageEmbed {
	if len(ns) == 0 {
		return nil
	}
	embeds := make([]*discordgo.MessageEmbed, 0, len(ns))
	for _, n := range ns {
		embeds = append(embeds, toEmbed(n))
	}
	return embeds
}

// toEmbed renders a notification: blue for info, red for errors.
func toEmbed(n domain.Notification) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: truncateRunes(n.Message, embedMaxDescription),
		Color:       colorInfo,
	}
	if n.Level == domain.LevelError {
		e.Color = colorError
	}
	for _, f := range n.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	if n.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: n.Footer}
	}
	return e
}

func toComponents(rows []domain.ActionRow) []discordgo.MessageComponent {
	if len(rows) == 0 {
		return nil
	}
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		ar := discordgo.ActionsRow{}
		if row.Menu != nil {
			ar.Components = append(ar.Components, toSelectMenu(*row.Menu))
		}
		for _, b := range row.Buttons {
			ar.Components = append(ar.Components, toButton(b))
		}
		out = append(out, ar)
	}
	return out
}

func toButton(b domain.Button) discordgo.Button {
	btn := discordgo.Button{
		Label:    b.Label,
		Disabled: b.Disabled,
	}
	switch b.Style {
	case domain.ButtonLink:
		btn.Style = discordgo.LinkButton
		btn.URL = b.URL
		return btn
	case domain.ButtonDanger:
		btn.Style = discordgo.DangerButton
	default:
		btn.Style = discordgo.PrimaryButton
	}
	btn.CustomID = b.CustomID
	return btn
}

func toSelectMenu(m domain.SelectMenu) discordgo.SelectMenu {
	menu := discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    m.CustomID,
		Placeholder: m.Placeholder,
	}
	for _, o := range m.Options {
		menu.Options = append(menu.Options, discordgo.SelectMenuOption{
			Label:       o.Label,
			Value:       o.Value,
			Description: o.Description,
		})
	}
	return menu
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible and never inside a rune.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if idx := strings.LastIndex(msg[:cut], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
