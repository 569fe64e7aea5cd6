package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

var (
	// ErrLimit is returned by Create when the owner already has the
	// configured maximum number of pending reminders.
	ErrLimit = errors.New("reminder limit reached")

	ErrEmptyContent = errors.New("reminder content is empty")
	ErrZeroDeadline = errors.New("reminder deadline is not set")
)

// Destination is where a fired reminder is delivered. For Telegram a user's
// DM chat id equals the user id, so one field covers both cases.
type Destination struct {
	ChatID int64
}

// Notifier transmits a rendered notification. It does not decide the
// destination; that is the Service's job.
type Notifier interface {
	Deliver(ctx context.Context, dest Destination, text string) error
}

// Config controls the reminder service.
type Config struct {
	// MaxPerUser caps pending reminders per owner. 0 disables the cap.
	MaxPerUser int

	// DeliverTimeout bounds one fire attempt (resolution + send + row
	// delete). 0 means a 30s default.
	DeliverTimeout time.Duration
}

// Service is the reminder scheduler. All exported methods are safe for
// concurrent use.
type Service struct {
	cfg   Config
	store storage.Store
	notif Notifier
	log   logx.Logger

	mu     sync.Mutex
	timers map[int64]*timerEntry
}

func New(cfg Config, store storage.Store, notif Notifier, log logx.Logger) *Service {
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		notif:  notif,
		log:    log,
		timers: map[int64]*timerEntry{},
	}
}

// Pending reports the number of live timers.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Armed reports whether a live timer exists for id.
func (s *Service) Armed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}
