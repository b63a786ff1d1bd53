// Package audit funnels every moderation action through one path: the audit
// row is written first, then the action is published and a notice is posted
// to the guild's moderation log channel. Only the row write can fail the
// call; publishing and delivery are best effort.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRecordFailed   = errors.New("audit record failed")
	ErrDeliveryFailed = errors.New("notification delivery failed")
)

type Store interface {
	RecordLog(ctx context.Context, entry storage.ModLogEntry) (int64, error)
	GetGuildSetting(ctx context.Context, guildID, key string) (string, error)
}

type Notifier interface {
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type SettingsSource interface {
	GuildSettings(guildID string) config.GuildSettings
}

type Actor struct {
	ID   string
	Name string
}

func (a Actor) Mention() string {
	return "<@" + a.ID + ">"
}

type Action struct {
	GuildID   string
	Type      string
	Moderator Actor
	Target    *Actor
	Reason    string
	Details   string
}

// Event is what publishers receive once the row exists.
type Event struct {
	ID    string
	Entry storage.ModLogEntry
}

type Pipeline struct {
	store      Store
	logger     *zap.Logger
	notifier   Notifier
	settings   SettingsSource
	publishers []Publisher
	now        func() time.Time
}

func NewPipeline(store Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, logger: logger, now: time.Now}
}

func (p *Pipeline) SetNotifier(notifier Notifier) {
	p.notifier = notifier
}

func (p *Pipeline) SetSettings(settings SettingsSource) {
	p.settings = settings
}

func (p *Pipeline) AddPublisher(publisher Publisher) {
	if publisher != nil {
		p.publishers = append(p.publishers, publisher)
	}
}

// Record writes the audit row for action and then notifies. The returned
// error wraps ErrRecordFailed and is the only failure surfaced; the
// moderation action it describes has already happened and is not undone.
func (p *Pipeline) Record(ctx context.Context, action Action) error {
	entry := storage.ModLogEntry{
		GuildID:     action.GuildID,
		ActionType:  action.Type,
		ModeratorID: action.Moderator.ID,
		Reason:      action.Reason,
		Details:     action.Details,
		CreatedAt:   p.now(),
	}
	if action.Target != nil {
		entry.TargetID = action.Target.ID
	}

	id, err := p.store.RecordLog(ctx, entry)
	if err != nil {
		p.logger.Error("audit row write failed",
			zap.String("guild_id", action.GuildID),
			zap.String("action", action.Type),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}
	entry.ID = id

	p.logger.Info("moderation action",
		zap.Int64("id", id),
		zap.String("guild_id", entry.GuildID),
		zap.String("action", entry.ActionType),
		zap.String("moderator_id", entry.ModeratorID),
		zap.String("target_id", entry.TargetID),
		zap.String("reason", entry.Reason),
		zap.String("details", entry.Details))

	event := Event{ID: uuid.NewString(), Entry: entry}
	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			p.logger.Warn("publish moderation event failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	if err := p.notify(ctx, action, event); err != nil {
		p.logger.Warn("moderation notice not delivered",
			zap.String("guild_id", action.GuildID),
			zap.String("action", action.Type),
			zap.Error(err))
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, action Action, event Event) error {
	if p.notifier == nil {
		return nil
	}

	settings := config.GuildSettings{EmbedColor: defaultEmbedColor, LogAllActions: true}
	if p.settings != nil {
		settings = p.settings.GuildSettings(action.GuildID)
	}
	if !settings.LogAllActions {
		return nil
	}

	channelID, err := p.store.GetGuildSetting(ctx, action.GuildID, storage.SettingModLogChannel)
	if err != nil {
		return fmt.Errorf("%w: lookup channel: %w", ErrDeliveryFailed, err)
	}
	if channelID == "" {
		channelID = settings.ModLogChannel
	}
	if channelID == "" {
		return nil
	}

	embed := BuildEmbed(action, event.ID, event.Entry.CreatedAt, settings.EmbedColor)
	if err := p.notifier.SendEmbed(ctx, channelID, embed); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}
