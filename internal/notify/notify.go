// Package notify transmits rendered reminder notifications. It owns only
// the transmission concern (rate limiting, failure reporting); destination
// resolution happens in the reminder service.
package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Sender is the outgoing side of a chat adapter.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// RatePerSec caps outgoing sends (Telegram flood control).
	// Defaults to 3.
	RatePerSec int
}

type Service struct {
	log logx.Logger

	mu      sync.Mutex
	sender  Sender
	limiter *rate.Limiter
}

// New creates the service. The sender may be nil at construction time (the
// transport is built after the services that deliver through it) and set
// later with SetSender.
func New(cfg Config, sender Sender, log logx.Logger) *Service {
	s := &Service{sender: sender, log: log}
	s.Apply(cfg)
	return s
}

func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	s.mu.Lock()
	// Burst = rate per sec so short spikes (recovery firing a backlog)
	// don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.mu.Unlock()
}

// Deliver sends text to the destination chat, honoring the rate limit.
func (s *Service) Deliver(ctx context.Context, dest reminder.Destination, text string) error {
	s.mu.Lock()
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return errors.New("notify: no sender configured")
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	err := sender.SendText(ctx, dest.ChatID, "⏰ "+text)
	if err != nil {
		s.log.Warn("notification send failed", logx.Int64("chat_id", dest.ChatID), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.Int64("chat_id", dest.ChatID))
	return nil
}
