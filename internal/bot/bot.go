package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"modwarden/internal/analytics"
	"modwarden/internal/config"
	"modwarden/internal/modules/audit"
	"modwarden/internal/platform"
	"modwarden/internal/storage"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	client    platform.Client
	events    platform.EventSource
	store     *storage.Store
	guilds    *config.GuildStore
	pipeline  *audit.Pipeline
	analytics *analytics.Service
	reports   *utils.KeyedLimiter
	now       func() time.Time

	commands     map[string]*Command
	commandOrder []*Command

	ready    atomic.Bool
	mu       sync.Mutex
	handlers []func()
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, guilds *config.GuildStore, pipeline *audit.Pipeline) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := newBot(cfg, logger, store, guilds, pipeline, platform.NewDiscord(session), session)
	b.session = session
	return b, nil
}

func newBot(cfg config.Config, logger *zap.Logger, store *storage.Store, guilds *config.GuildStore, pipeline *audit.Pipeline, client platform.Client, events platform.EventSource) *Bot {
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		events:    events,
		store:     store,
		guilds:    guilds,
		pipeline:  pipeline,
		analytics: analytics.New(store),
		reports: utils.NewKeyedLimiter(
			time.Duration(cfg.Reports.CooldownSeconds)*time.Second,
			cfg.Reports.MaxPerWindow,
		),
		now:      time.Now,
		commands: make(map[string]*Command),
	}
	for _, cmd := range b.buildCommands() {
		b.commands[cmd.Name] = cmd
		b.commandOrder = append(b.commandOrder, cmd)
	}
	pipeline.SetNotifier(channelNotifier{client: client})
	pipeline.SetSettings(guilds)
	return b
}

// Start registers gateway handlers, opens the session and reconciles the
// slash command set.
func (b *Bot) Start() error {
	if b.events != nil {
		b.mu.Lock()
		b.handlers = append(b.handlers,
			b.events.AddHandler(b.onReady),
			b.events.AddHandler(b.onGuildCreate),
			b.events.AddHandler(b.onGuildDelete),
			b.events.AddHandler(b.onInteractionCreate),
			b.events.AddHandler(b.onMessageReactionAdd),
		)
		b.mu.Unlock()
	}

	if b.session != nil {
		if err := b.session.Open(); err != nil {
			return fmt.Errorf("open gateway session: %w", err)
		}
	}

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	b.mu.Lock()
	for _, remove := range b.handlers {
		remove()
	}
	b.handlers = nil
	b.mu.Unlock()

	b.ready.Store(false)
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

// RunPresence refreshes the bot status until ctx is done. A zero interval
// disables the refresh.
func (b *Bot) RunPresence(ctx context.Context) error {
	interval := time.Duration(b.cfg.Presence.IntervalSeconds) * time.Second
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.updatePresence()
		}
	}
}

func (b *Bot) updatePresence() {
	if !b.ready.Load() {
		return
	}
	if err := b.client.UpdateStatus(b.presenceText()); err != nil {
		b.logger.Warn("presence update failed", zap.Error(err))
	}
}

func (b *Bot) presenceText() string {
	status := b.cfg.Presence.Status
	if status == "" {
		status = "Moderating the server"
	}
	return fmt.Sprintf("%s | %d servers", status, len(b.client.GuildIDs()))
}

// Client is the platform client the bot acts through.
func (b *Bot) Client() platform.Client {
	return b.client
}

func (b *Bot) Ready() bool {
	return b.ready.Load()
}

func (b *Bot) GuildCount() int {
	return len(b.client.GuildIDs())
}

func (b *Bot) Latency() time.Duration {
	return b.client.Latency()
}

func (b *Bot) BotUser() string {
	return displayName(b.client.BotUser())
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.ready.Store(true)
	name := ""
	if r.User != nil {
		name = displayName(r.User)
	}
	b.logger.Info("discord session ready", zap.String("user", name), zap.Int("guilds", len(r.Guilds)))
	b.updatePresence()
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.store.EnsureGuild(ctx, g.ID); err != nil {
		b.logger.Error("ensure guild settings failed", zap.String("guild_id", g.ID), zap.Error(err))
		return
	}
	b.logger.Info("guild available", zap.String("guild_id", g.ID), zap.String("guild", g.Name))
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil {
		return
	}
	if g.Unavailable {
		b.logger.Warn("guild unavailable", zap.String("guild_id", g.ID))
		return
	}
	b.logger.Info("guild removed", zap.String("guild_id", g.ID))
}

// channelNotifier posts audit notices through the platform client.
type channelNotifier struct {
	client platform.Client
}

func (n channelNotifier) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	_, err := n.client.SendEmbed(channelID, embed)
	return err
}
