package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	store, err := New(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store.WithClock(clock)
	return store, clock
}

func TestMigrateIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New("mysql", "x"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestSetGuildSettingUpserts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetGuildSetting(ctx, "g1", SettingModLogChannel, "c1"); err != nil {
		t.Fatalf("set mod log channel: %v", err)
	}
	if err := store.SetGuildSetting(ctx, "g1", SettingModLogChannel, "c2"); err != nil {
		t.Fatalf("update mod log channel: %v", err)
	}
	if err := store.SetGuildSetting(ctx, "g1", SettingMuteRole, "r1"); err != nil {
		t.Fatalf("set mute role: %v", err)
	}

	got, err := store.GetGuildSetting(ctx, "g1", SettingModLogChannel)
	if err != nil {
		t.Fatalf("get mod log channel: %v", err)
	}
	if got != "c2" {
		t.Fatalf("expected channel c2, got %q", got)
	}
	role, err := store.GetGuildSetting(ctx, "g1", SettingMuteRole)
	if err != nil {
		t.Fatalf("get mute role: %v", err)
	}
	if role != "r1" {
		t.Fatalf("expected role r1, got %q", role)
	}

	if err := store.SetGuildSetting(ctx, "g1", SettingModLogChannel, ""); err != nil {
		t.Fatalf("clear mod log channel: %v", err)
	}
	if got, _ := store.GetGuildSetting(ctx, "g1", SettingModLogChannel); got != "" {
		t.Fatalf("expected cleared channel, got %q", got)
	}
}

func TestGuildSettingForUnknownGuild(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.GetGuildSetting(context.Background(), "missing", SettingMuteRole)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty value, got %q", got)
	}
}

func TestUnknownSettingKey(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.SetGuildSetting(context.Background(), "g1", "prefix", "!")
	if !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("expected ErrUnknownSetting, got %v", err)
	}
}

func TestSettingsBlobSurvivesColumnUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	blob, err := store.GetSettingsBlob(ctx, "g1")
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if string(blob) != "{}" {
		t.Fatalf("expected empty object, got %s", blob)
	}

	if err := store.SetSettingsBlob(ctx, "g1", []byte(`{"lockdown":{}}`)); err != nil {
		t.Fatalf("set blob: %v", err)
	}
	if err := store.SetGuildSetting(ctx, "g1", SettingMuteRole, "r1"); err != nil {
		t.Fatalf("set mute role: %v", err)
	}
	blob, _ = store.GetSettingsBlob(ctx, "g1")
	if string(blob) != `{"lockdown":{}}` {
		t.Fatalf("blob overwritten: %s", blob)
	}
}

func TestEnsureGuildKeepsExistingRow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetGuildSetting(ctx, "g1", SettingModLogChannel, "c1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.EnsureGuild(ctx, "g1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := store.EnsureGuild(ctx, "g2"); err != nil {
		t.Fatalf("ensure new: %v", err)
	}
	if got, _ := store.GetGuildSetting(ctx, "g1", SettingModLogChannel); got != "c1" {
		t.Fatalf("expected c1, got %q", got)
	}
}

func TestRebindForPostgres(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	got := s.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	s.driver = DriverSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query rewritten: %s", got)
	}
}
