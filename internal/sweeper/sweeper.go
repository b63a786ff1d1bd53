// Package sweeper lifts timed mutes once their end time has passed.
package sweeper

import (
	"context"
	"time"

	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const DefaultInterval = 30 * time.Second

type Store interface {
	ListExpiredActiveMutes(ctx context.Context) ([]storage.Mute, error)
	DeactivateMute(ctx context.Context, guildID, userID string) (bool, error)
	GetGuildSetting(ctx context.Context, guildID, key string) (string, error)
}

type Platform interface {
	RemoveRole(guildID, userID, roleID string) error
	BotUser() *discordgo.User
}

type Recorder interface {
	Record(ctx context.Context, action audit.Action) error
}

type Sweeper struct {
	store    Store
	platform Platform
	recorder Recorder
	interval time.Duration
	logger   *zap.Logger
}

func New(store Store, platform Platform, recorder Recorder, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: store, platform: platform, recorder: recorder, interval: interval, logger: logger}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("mute sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce lifts every expired mute and returns how many it closed. A mute
// closed concurrently by a manual unmute is skipped without an audit entry.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	mutes, err := s.store.ListExpiredActiveMutes(ctx)
	if err != nil {
		return 0, err
	}

	lifted := 0
	for _, mute := range mutes {
		if ctx.Err() != nil {
			return lifted, ctx.Err()
		}
		s.removeRole(ctx, mute)

		closed, err := s.store.DeactivateMute(ctx, mute.GuildID, mute.UserID)
		if err != nil {
			s.logger.Warn("deactivate expired mute failed",
				zap.String("guild_id", mute.GuildID),
				zap.String("user_id", mute.UserID),
				zap.Error(err))
			continue
		}
		if !closed {
			continue
		}
		lifted++

		// the mute is already lifted; Record logs its own failures
		_ = s.recorder.Record(ctx, audit.Action{
			GuildID:   mute.GuildID,
			Type:      "auto unmute",
			Moderator: s.botActor(),
			Target:    &audit.Actor{ID: mute.UserID},
			Reason:    "Mute expired",
		})
	}
	return lifted, nil
}

func (s *Sweeper) removeRole(ctx context.Context, mute storage.Mute) {
	roleID, err := s.store.GetGuildSetting(ctx, mute.GuildID, storage.SettingMuteRole)
	if err != nil {
		s.logger.Warn("mute role lookup failed", zap.String("guild_id", mute.GuildID), zap.Error(err))
		return
	}
	if roleID == "" || s.platform == nil {
		return
	}
	if err := s.platform.RemoveRole(mute.GuildID, mute.UserID, roleID); err != nil {
		s.logger.Debug("mute role removal failed",
			zap.String("guild_id", mute.GuildID),
			zap.String("user_id", mute.UserID),
			zap.Error(err))
	}
}

func (s *Sweeper) botActor() audit.Actor {
	if s.platform != nil {
		if user := s.platform.BotUser(); user != nil {
			return audit.Actor{ID: user.ID, Name: user.Username}
		}
	}
	return audit.Actor{Name: "System"}
}
