// Package telegram is the request layer: it parses user commands, enforces
// per-owner authorization, and hands absolute deadlines to the reminder
// service. It is also the outgoing Sender used for delivery.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	Location    *time.Location // deadline expressions are parsed in this zone
}

type Bot struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	rem   *reminder.Service
	store storage.Store

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, rem *reminder.Service, store storage.Store, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Bot{cfg: cfg, log: log, bot: b, rem: rem, store: store}, nil
}

// Start registers command handlers and begins long polling. It returns once
// polling is running; polling stops when ctx is cancelled or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return nil
	}
	b.running = true
	rctx, cancel := context.WithCancel(ctx)
	b.runCancel = cancel
	b.runMu.Unlock()

	b.bot.Handle("/remind", b.handleRemind)
	b.bot.Handle("/remind_list", b.handleRemindList)
	b.bot.Handle("/remind_del", b.handleRemindDel)
	b.bot.Handle("/settings_dm", b.handleSettingsDM)
	b.bot.Handle("/start", func(c tele.Context) error { return c.Send(helpText) })
	b.bot.Handle("/help", func(c tele.Context) error { return c.Send(helpText) })

	b.runWG.Add(1)
	go func() {
		defer b.runWG.Done()
		go func() {
			<-rctx.Done()
			b.bot.Stop()
		}()
		b.log.Info("polling started")
		b.bot.Start()
		b.log.Info("polling stopped")
	}()
	return nil
}

func (b *Bot) Stop() {
	b.runMu.Lock()
	cancel := b.runCancel
	b.runCancel = nil
	b.running = false
	b.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.runWG.Wait()
}

// SendText delivers text to a chat. A user's DM chat id equals the user id.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	_, err := b.bot.Send(tele.ChatID(chatID), text)
	return err
}

const helpText = `Commands:
/remind <when> ; <text> — schedule a reminder ("in 2h30m", "at 18:00", "on 2026-09-05 09:00")
/remind_list — your pending reminders
/remind_del <id ...> — cancel reminders by id
/settings_dm on|off — always deliver reminders by DM`
