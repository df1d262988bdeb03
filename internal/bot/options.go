package bot

import (
	"time"

	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
)

// Option applies a configuration option to the Bot.
type Option func(*Bot)

// WithDefaults sets the app id used by /remove without one and the context
// id stored with new registrations.
func WithDefaults(appID, contextID int64) Option {
	return func(b *Bot) {
		if appID > 0 {
			b.defaultAppID = appID
		}
		if contextID > 0 {
			b.defaultContextID = contextID
		}
	}
}

// WithSessionTTL sets how long an add flow stays open.
func WithSessionTTL(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.sessionTTL = d
		}
	}
}

// WithPollTimeout sets the getUpdates long-poll timeout.
func WithPollTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.pollTimeout = d
		}
	}
}

// WithRetryDelay sets the pause after a failed poll.
func WithRetryDelay(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.retryDelay = d
		}
	}
}

// WithClock sets the clock for sessions and poll retries.
func WithClock(c clock.Clock) Option {
	return func(b *Bot) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithLogger sets a custom logger for the bot.
func WithLogger(l logger.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}
