package session

import (
	"time"

	"github.com/walink/walink/internal/protocol"
)

// Action is the reconnection policy verdict.
type Action int

const (
	// ActionStop leaves the session down until an operator intervenes.
	ActionStop Action = iota
	// ActionBackoff schedules one reconnect attempt after Delay.
	ActionBackoff
	// ActionWipeAndRestart purges stored credentials and begins a fresh
	// pairing cycle after Delay.
	ActionWipeAndRestart
)

func (a Action) String() string {
	switch a {
	case ActionBackoff:
		return "backoff"
	case ActionWipeAndRestart:
		return "wipe-and-restart"
	default:
		return "stop"
	}
}

// Decision is the full outcome of a close event: what to do next and the
// state the session presents while it happens.
type Decision struct {
	Action Action
	Delay  time.Duration
	// RetryCount is the new value of the retry counter.
	RetryCount int
	// Status is the externally visible status until the scheduled action
	// fires (or indefinitely for ActionStop).
	Status               Status
	WipeCredentials      bool
	DisableAutoReconnect bool
}

// backoffDelay caps the backoff multiplier; a flaky link should not grow
// delays without bound.
const maxBackoffSteps = 3

func backoffDelay(base time.Duration, retryCount int) time.Duration {
	steps := retryCount
	if steps > maxBackoffSteps {
		steps = maxBackoffSteps
	}
	if steps < 1 {
		steps = 1
	}
	return base * time.Duration(steps)
}

// Decide maps a close reason class onto the recover-vs-give-up behavior.
// Pure function: all inputs explicit, no side effects.
func Decide(class protocol.ReasonClass, retryCount int, autoReconnect bool, cfg Config) Decision {
	cfg = cfg.withDefaults()

	switch class {
	case protocol.ReasonLoggedOut:
		// The device link was revoked; the credentials are dead and a fresh
		// pairing is forced even when auto-reconnect is off.
		return Decision{
			Action:          ActionWipeAndRestart,
			Delay:           cfg.WipeRestartDelay,
			RetryCount:      0,
			Status:          StatusConnecting,
			WipeCredentials: true,
		}

	case protocol.ReasonCorruptSession:
		if !autoReconnect {
			return Decision{Action: ActionStop, RetryCount: retryCount, Status: StatusClosed}
		}
		return Decision{
			Action:          ActionWipeAndRestart,
			Delay:           cfg.WipeRestartDelay,
			RetryCount:      0,
			Status:          StatusConnecting,
			WipeCredentials: true,
		}

	case protocol.ReasonConflict:
		// Session taken over elsewhere; a human must resolve it.
		return Decision{
			Action:               ActionStop,
			RetryCount:           retryCount,
			Status:               StatusClosed,
			DisableAutoReconnect: true,
		}

	default: // transient
		if retryCount >= cfg.MaxRetries {
			// The retry budget is spent: this credential set is unusable.
			if !autoReconnect {
				return Decision{Action: ActionStop, RetryCount: retryCount, Status: StatusErrored}
			}
			return Decision{
				Action:          ActionWipeAndRestart,
				Delay:           cfg.ExhaustedCooldown,
				RetryCount:      0,
				Status:          StatusErrored,
				WipeCredentials: true,
			}
		}
		if !autoReconnect {
			return Decision{Action: ActionStop, RetryCount: retryCount, Status: StatusClosed}
		}
		next := retryCount + 1
		return Decision{
			Action:     ActionBackoff,
			Delay:      backoffDelay(cfg.RetryBaseDelay, next),
			RetryCount: next,
			Status:     StatusConnecting,
		}
	}
}
