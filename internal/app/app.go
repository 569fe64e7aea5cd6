// Package app wires configuration, storage, the reminder scheduler, and the
// Telegram transport into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"remindbot/internal/config"
	"remindbot/internal/notify"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	store storage.Store
	rem   *reminder.Service
	notif *notify.Service
	bot   *telegram.Bot

	cron *cron.Cron

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	loc := loadLocation(cfg.Reminders.Timezone, log)

	notifSvc := notify.New(notify.Config{
		RatePerSec: cfg.Reminders.SendRatePerSec,
	}, nil, logs.Logger().With(logx.String("comp", "notify")))

	remSvc := reminder.New(reminder.Config{
		MaxPerUser: cfg.Reminders.MaxPerUser,
	}, store, notifSvc, logs.Logger().With(logx.String("comp", "reminder")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		Location:    loc,
	}, remSvc, store, logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	notifSvc.SetSender(bot)

	return &App{
		cfgm:  cfgm,
		logs:  logs,
		log:   log,
		store: store,
		rem:   remSvc,
		notif: notifSvc,
		bot:   bot,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	// Recovery must complete before any command is accepted: timers are
	// in-memory only, and the store is the source of truth after a restart.
	armed, err := a.rem.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover reminders: %w", err)
	}
	a.log.Info("recovery complete", logx.Int("armed", armed))

	if err := a.bot.Start(ctx); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	if err := a.startReconcile(ctx); err != nil {
		return err
	}

	a.startConfigWatch(ctx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("started")
	return nil
}

// startReconcile arms a periodic sweep that re-runs recovery. Arming is
// idempotent, so the sweep only picks up rows that lost their timer.
func (a *App) startReconcile(ctx context.Context) error {
	cfg := a.cfgm.Get()
	every, err := config.ParseDurationOrDefault("reminders.reconcile_every", cfg.Reminders.ReconcileEvery, 5*time.Minute)
	if err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}

	a.cron = cron.New()
	_, err = a.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if armed, err := a.rem.Recover(sctx); err != nil {
			a.log.Warn("reconcile sweep failed", logx.Err(err))
		} else if armed > 0 {
			a.log.Warn("reconcile sweep re-armed reminders", logx.Int("armed", armed))
		}
	})
	if err != nil {
		return fmt.Errorf("reconcile schedule: %w", err)
	}
	a.cron.Start()
	a.log.Debug("reconcile sweep scheduled", logx.Duration("every", every))
	return nil
}

func (a *App) startConfigWatch(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})
	sub := a.cfgm.Subscribe(1)

	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(wctx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-wctx.Done():
				a.cfgm.Unsubscribe(sub)
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.apply(cfg)
			}
		}
	}()
}

// apply handles a hot-reloaded config. Only logging and delivery-rate knobs
// take effect live; token, storage, and timezone changes need a restart.
func (a *App) apply(cfg *config.Config) {
	a.logs.Apply(loggingConfig(cfg))
	a.notif.Apply(notify.Config{RatePerSec: cfg.Reminders.SendRatePerSec})
	a.log.Info("config applied",
		logx.String("log_level", cfg.Logging.Level),
		logx.Int("send_rate_per_sec", cfg.Reminders.SendRatePerSec))
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchCancel != nil {
		a.watchCancel()
		a.watchWG.Wait()
	}
	a.bot.Stop()
	if a.cron != nil {
		select {
		case <-a.cron.Stop().Done():
		case <-ctx.Done():
		}
	}
	// Timers are halted without touching rows: the store stays intact for
	// the next recovery.
	a.rem.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("reminders.reconcile_every", cfg.Reminders.ReconcileEvery); err != nil {
		return err
	}
	if cfg.Reminders.MaxPerUser < 0 {
		return fmt.Errorf("reminders.max_per_user must be >= 0")
	}
	if cfg.Reminders.SendRatePerSec < 0 {
		return fmt.Errorf("reminders.send_rate_per_sec must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Reminders.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminders.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
