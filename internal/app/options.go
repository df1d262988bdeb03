package service

import (
	"net/http"

	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects a store instead of the one named by the config. The
// service still closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithTelegram replaces the Bot API client, mainly for tests.
func WithTelegram(api TelegramAPI) Option {
	return func(s *Service) {
		if api != nil {
			s.telegram = api
		}
	}
}

// WithSteamTransport sets the round tripper of the inventory client.
func WithSteamTransport(rt http.RoundTripper) Option {
	return func(s *Service) {
		if rt != nil {
			s.steamTransport = rt
		}
	}
}

// WithClock sets the clock shared by the scheduler, inventory client and bot.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}
