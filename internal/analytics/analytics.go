package analytics

import (
	"context"
	"sort"
	"time"

	"modwarden/internal/storage"
)

type Store interface {
	ListModLogs(ctx context.Context, guildID string, since time.Time) ([]storage.ModLogEntry, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

type ModeratorCount struct {
	ModeratorID string
	Actions     int
}

type Report struct {
	Total         int
	ByAction      map[string]int
	TopModerators []ModeratorCount
}

// Actions returns the action types ordered by count, then name.
func (r Report) Actions() []string {
	actions := make([]string, 0, len(r.ByAction))
	for action := range r.ByAction {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		if r.ByAction[actions[i]] != r.ByAction[actions[j]] {
			return r.ByAction[actions[i]] > r.ByAction[actions[j]]
		}
		return actions[i] < actions[j]
	})
	return actions
}

const topModerators = 5

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListModLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByAction: make(map[string]int)}
	perModerator := make(map[string]int)
	for _, log := range logs {
		report.Total++
		report.ByAction[log.ActionType]++
		perModerator[log.ModeratorID]++
	}

	for id, n := range perModerator {
		report.TopModerators = append(report.TopModerators, ModeratorCount{ModeratorID: id, Actions: n})
	}
	sort.Slice(report.TopModerators, func(i, j int) bool {
		a, b := report.TopModerators[i], report.TopModerators[j]
		if a.Actions != b.Actions {
			return a.Actions > b.Actions
		}
		return a.ModeratorID < b.ModeratorID
	})
	if len(report.TopModerators) > topModerators {
		report.TopModerators = report.TopModerators[:topModerators]
	}
	return report, nil
}
