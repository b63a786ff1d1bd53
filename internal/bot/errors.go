package bot

import (
	"errors"
	"fmt"
	"strings"

	"modwarden/internal/duration"
)

var (
	ErrCapabilityMissing = errors.New("capability missing")
	ErrOperationFailed   = errors.New("platform operation failed")
	ErrInvalidID         = fmt.Errorf("invalid snowflake id: %w", duration.ErrInvalidFormat)
)

// CapabilityError names the permissions the actor (or the bot) lacks.
type CapabilityError struct {
	Missing []string
	Bot     bool
}

func (e *CapabilityError) Error() string {
	who := "user"
	if e.Bot {
		who = "bot"
	}
	return fmt.Sprintf("%s missing %s", who, strings.Join(e.Missing, ", "))
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityMissing
}

func (e *CapabilityError) Message() string {
	if e.Bot {
		return "I'm missing the following permissions: " + strings.Join(e.Missing, ", ")
	}
	if len(e.Missing) == 0 {
		return "You don't have permission to use this command."
	}
	return "You need the following permissions: " + strings.Join(e.Missing, ", ")
}

// refusal is a request the handler turned down before touching anything.
// Its text goes back to the actor verbatim.
type refusal struct {
	msg string
}

func (r *refusal) Error() string { return r.msg }

func refuse(format string, args ...any) error {
	return &refusal{msg: fmt.Sprintf(format, args...)}
}

func opFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOperationFailed, op, err)
}
