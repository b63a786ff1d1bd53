package audit

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultEmbedColor = 0x2F3136

// Title renders an action type such as "auto unmute" as "Auto Unmute".
// Casers keep state, so each call gets its own.
func Title(actionType string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(actionType, "_", " "))
}

func BuildEmbed(action Action, eventID string, at time.Time, color int) *discordgo.MessageEmbed {
	if color == 0 {
		color = defaultEmbedColor
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Moderator", Value: actorLabel(action.Moderator), Inline: true},
	}
	if action.Target != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Target", Value: actorLabel(*action.Target), Inline: true})
	}
	if action.Reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: truncate(action.Reason, 1024)})
	}
	if action.Details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Details", Value: truncate(action.Details, 1024)})
	}

	return &discordgo.MessageEmbed{
		Title:     "🔨 " + Title(action.Type),
		Color:     color,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "Action ID: " + eventID},
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func actorLabel(actor Actor) string {
	if actor.ID == "" {
		return actor.Name
	}
	if actor.Name == "" {
		return actor.Mention()
	}
	return actor.Mention() + " (" + actor.Name + ")"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
