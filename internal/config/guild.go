package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

const (
	KeyModLogChannel        = "mod_log_channel"
	KeyDefaultMuteRole      = "default_mute_role"
	KeyMaxWarnings          = "max_warnings"
	KeyAutoBanOnMaxWarnings = "auto_ban_on_max_warnings"
	KeyLogAllActions        = "log_all_actions"
	KeyEmbedColor           = "embed_color"
	KeySuccessColor         = "success_color"
	KeyErrorColor           = "error_color"
	KeyWarningColor         = "warning_color"
)

var ErrUnknownKey = errors.New("unknown config key")

// DefaultGuildValues are merged into the document on every load. Keys
// already present in the file win.
func DefaultGuildValues() map[string]any {
	return map[string]any{
		KeyModLogChannel:        nil,
		KeyDefaultMuteRole:      "Muted",
		KeyMaxWarnings:          3,
		KeyAutoBanOnMaxWarnings: false,
		KeyLogAllActions:        true,
		KeyEmbedColor:           0x2F3136,
		KeySuccessColor:         0x00FF00,
		KeyErrorColor:           0xFF0000,
		KeyWarningColor:         0xFFFF00,
	}
}

type GuildSettings struct {
	ModLogChannel        string
	DefaultMuteRole      string
	MaxWarnings          int
	AutoBanOnMaxWarnings bool
	LogAllActions        bool
	EmbedColor           int
	SuccessColor         int
	ErrorColor           int
	WarningColor         int
}

// GuildStore is the JSON settings document. Per-guild overrides live under
// "guild_<id>" objects; everything else is a process-wide value. Every
// mutation is written back to disk before it returns.
type GuildStore struct {
	mu   sync.RWMutex
	path string
	data map[string]any
}

func LoadGuildStore(path string) (*GuildStore, error) {
	s := &GuildStore{path: path, data: DefaultGuildValues()}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, s.save()
	}
	if err != nil {
		return nil, fmt.Errorf("read guild config: %w", err)
	}

	// numbers stay json.Number so snowflake ids keep every digit
	loaded := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&loaded); err != nil {
		return nil, fmt.Errorf("parse guild config %s: %w", path, err)
	}
	for key, value := range DefaultGuildValues() {
		if _, ok := loaded[key]; !ok {
			loaded[key] = value
		}
	}
	s.data = loaded
	return s, nil
}

func (s *GuildStore) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key]
}

func (s *GuildStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.save()
}

func (s *GuildStore) GuildGet(guildID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.data[guildKey(guildID)].(map[string]any)
	if !ok {
		return nil, false
	}
	value, ok := section[key]
	return value, ok
}

func (s *GuildStore) GuildSet(guildID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.data[guildKey(guildID)].(map[string]any)
	if !ok {
		section = make(map[string]any)
		s.data[guildKey(guildID)] = section
	}
	section[key] = value
	return s.save()
}

// SetGuildValue parses raw according to the type of key and stores it for
// the guild.
func (s *GuildStore) SetGuildValue(guildID, key, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	var value any
	switch key {
	case KeyDefaultMuteRole:
		if raw == "" {
			return nil, fmt.Errorf("%s cannot be empty", key)
		}
		value = raw
	case KeyMaxWarnings:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		value = n
	case KeyAutoBanOnMaxWarnings, KeyLogAllActions:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		value = b
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return value, s.GuildSet(guildID, key, value)
}

// GuildSettings resolves every known key for the guild, falling back to the
// process-wide value and then to the built-in default.
func (s *GuildStore) GuildSettings(guildID string) GuildSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	section, _ := s.data[guildKey(guildID)].(map[string]any)
	defaults := DefaultGuildValues()
	lookup := func(key string) any {
		if value, ok := section[key]; ok && value != nil {
			return value
		}
		if value, ok := s.data[key]; ok && value != nil {
			return value
		}
		return defaults[key]
	}

	return GuildSettings{
		ModLogChannel:        asString(lookup(KeyModLogChannel)),
		DefaultMuteRole:      asString(lookup(KeyDefaultMuteRole)),
		MaxWarnings:          asInt(lookup(KeyMaxWarnings), 3),
		AutoBanOnMaxWarnings: asBool(lookup(KeyAutoBanOnMaxWarnings)),
		LogAllActions:        asBool(lookup(KeyLogAllActions)),
		EmbedColor:           asInt(lookup(KeyEmbedColor), 0x2F3136),
		SuccessColor:         asInt(lookup(KeySuccessColor), 0x00FF00),
		ErrorColor:           asInt(lookup(KeyErrorColor), 0xFF0000),
		WarningColor:         asInt(lookup(KeyWarningColor), 0xFFFF00),
	}
}

// save expects s.mu to be held.
func (s *GuildStore) save() error {
	if s.path == "" {
		return nil
	}
	payload, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return fmt.Errorf("encode guild config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create guild config dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write guild config: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func guildKey(guildID string) string {
	return "guild_" + guildID
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func asInt(value any, fallback int) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func asBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}
