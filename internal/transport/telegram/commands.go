package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const deadlineFormat = "Mon, Jan 2, 2006 at 15:04"

const handlerTimeout = 10 * time.Second

func (b *Bot) handleRemind(c tele.Context) error {
	when, content, err := splitRequest(c.Message().Payload)
	if err != nil {
		return c.Send(fmt.Sprintf("Usage: /remind <when> ; <text>\n%v", err))
	}
	deadline, err := parseDeadline(when, time.Now(), b.cfg.Location)
	if err != nil {
		return c.Send(fmt.Sprintf("I couldn't understand %q: %v", when, err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	origin := fmt.Sprintf("%d/%d", c.Chat().ID, c.Message().ID)
	id, err := b.rem.Create(ctx, c.Sender().ID, content, deadline, origin)
	if err != nil {
		if errors.Is(err, reminder.ErrLimit) {
			return c.Send("You have too many pending reminders. Cancel some with /remind_del first.")
		}
		b.log.Warn("create reminder failed", logx.Int64("user", c.Sender().ID), logx.Err(err))
		return c.Send("Sorry, I couldn't save that reminder. Try again in a moment.")
	}
	return c.Send(fmt.Sprintf("✅ Reminder %d set for %s", id, deadline.In(b.cfg.Location).Format(deadlineFormat)))
}

func (b *Bot) handleRemindList(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	recs, err := b.store.ListOwnerReminders(ctx, c.Sender().ID)
	if err != nil {
		b.log.Warn("list reminders failed", logx.Int64("user", c.Sender().ID), logx.Err(err))
		return c.Send("Sorry, I couldn't load your reminders.")
	}
	if len(recs) == 0 {
		return c.Send("No pending reminders.")
	}

	var sb strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&sb, "%d: %s\n%s (%s)\n\n",
			r.ID, r.Content,
			r.Deadline.In(b.cfg.Location).Format(deadlineFormat),
			humanize.Time(r.Deadline))
	}
	return c.Send(strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) handleRemindDel(c tele.Context) error {
	fields := strings.Fields(c.Message().Payload)
	if len(fields) == 0 {
		return c.Send("Usage: /remind_del <id ...>")
	}
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return c.Send(fmt.Sprintf("%q is not a reminder id", f))
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	n, err := b.rem.Cancel(ctx, c.Sender().ID, ids)
	if err != nil {
		b.log.Warn("cancel reminders failed", logx.Int64("user", c.Sender().ID), logx.Err(err))
		return c.Send("Sorry, I couldn't cancel those reminders.")
	}
	switch n {
	case 0:
		return c.Send("Nothing to cancel.")
	case 1:
		return c.Send("Cancelled 1 reminder.")
	default:
		return c.Send(fmt.Sprintf("Cancelled %d reminders.", n))
	}
}

func (b *Bot) handleSettingsDM(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	arg := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	switch arg {
	case "":
		p, err := b.store.GetUserPrefs(ctx, c.Sender().ID)
		if err != nil {
			return c.Send("Sorry, I couldn't load your settings.")
		}
		if p.DMReminders {
			return c.Send("Reminders are delivered by DM. Use /settings_dm off to deliver in the originating chat.")
		}
		return c.Send("Reminders are delivered in the originating chat. Use /settings_dm on to deliver by DM.")
	case "on", "off":
		p := storage.UserPrefs{UserID: c.Sender().ID, DMReminders: arg == "on"}
		if err := b.store.SetUserPrefs(ctx, p); err != nil {
			b.log.Warn("set prefs failed", logx.Int64("user", c.Sender().ID), logx.Err(err))
			return c.Send("Sorry, I couldn't save that setting.")
		}
		return c.Send("Done.")
	default:
		return c.Send("Usage: /settings_dm on|off")
	}
}
