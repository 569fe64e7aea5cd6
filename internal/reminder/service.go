package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Create persists a new reminder and arms its timer. The record is written
// before the timer is armed: a crash in between loses only the timer, which
// Recover rebuilds from the store. On a store failure nothing is armed and
// the error propagates to the caller.
func (s *Service) Create(ctx context.Context, ownerID int64, content string, deadline time.Time, origin string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, ErrEmptyContent
	}
	if deadline.IsZero() {
		return 0, ErrZeroDeadline
	}
	if s.cfg.MaxPerUser > 0 {
		n, err := s.store.CountOwnerReminders(ctx, ownerID)
		if err != nil {
			return 0, fmt.Errorf("count reminders: %w", err)
		}
		if n >= s.cfg.MaxPerUser {
			return 0, ErrLimit
		}
	}

	// Reserve the id slot before persisting so a concurrent Create cannot
	// pick the same id, and a concurrent Cancel of the fresh id is seen.
	e := &timerEntry{}
	s.mu.Lock()
	id := s.nextIDLocked(time.Now())
	e.rec = storage.Reminder{
		ID:       id,
		OwnerID:  ownerID,
		Content:  content,
		Deadline: deadline,
		Origin:   origin,
	}
	s.timers[id] = e
	s.mu.Unlock()

	if err := s.store.InsertReminder(ctx, e.rec); err != nil {
		s.dropEntry(e)
		return 0, fmt.Errorf("persist reminder: %w", err)
	}
	s.arm(e)
	s.log.Debug("reminder created",
		logx.Int64("id", id), logx.Int64("owner", ownerID), logx.Time("deadline", deadline))
	return id, nil
}

// Cancel stops live timers and deletes records for the given ids, scoped to
// ownerID. An id with neither a live timer nor a record is a no-op: it may
// already have fired between request formation and execution. Returns how
// many live timers were cancelled.
func (s *Service) Cancel(ctx context.Context, ownerID int64, ids []int64) (int, error) {
	cancelled := 0
	for _, id := range ids {
		s.mu.Lock()
		e, ok := s.timers[id]
		if ok && e.rec.OwnerID == ownerID {
			delete(s.timers, id)
		} else {
			e = nil
		}
		s.mu.Unlock()

		if e != nil {
			e.halt()
			cancelled++
		}
		// Unconditional, idempotent: the row may already be gone (fired or
		// never existed), or may exist without a timer (pre-recover crash).
		if err := s.store.DeleteReminder(ctx, id, ownerID); err != nil {
			return cancelled, fmt.Errorf("delete reminder %d: %w", id, err)
		}
	}
	if cancelled > 0 {
		s.log.Debug("reminders cancelled", logx.Int64("owner", ownerID), logx.Int("count", cancelled))
	}
	return cancelled, nil
}

// Recover arms a timer for every persisted reminder that has none. It must
// run once at startup before requests are accepted; it is idempotent, so the
// periodic reconcile sweep reuses it. Records with past deadlines are armed
// anyway and fire immediately rather than being dropped.
func (s *Service) Recover(ctx context.Context) (int, error) {
	recs, err := s.store.ListReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}

	armed := 0
	for _, rec := range recs {
		e := &timerEntry{rec: rec}
		s.mu.Lock()
		if _, ok := s.timers[rec.ID]; ok {
			s.mu.Unlock()
			continue
		}
		s.timers[rec.ID] = e
		s.mu.Unlock()
		s.arm(e)
		armed++
	}
	if armed > 0 {
		s.log.Info("reminders recovered", logx.Int("armed", armed), logx.Int("persisted", len(recs)))
	}
	return armed, nil
}

// Stop halts every live timer without touching durable records, so the next
// Recover rebuilds them.
func (s *Service) Stop() {
	s.mu.Lock()
	entries := make([]*timerEntry, 0, len(s.timers))
	for id, e := range s.timers {
		entries = append(entries, e)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.halt()
	}
	if len(entries) > 0 {
		s.log.Info("reminder timers stopped", logx.Int("count", len(entries)))
	}
}

// fire runs when a timer reaches its deadline: resolve the destination,
// deliver once, delete the record, drop the timer. Errors here are terminal
// for this one reminder only.
func (s *Service) fire(e *timerEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in reminder fire",
				logx.Int64("id", e.rec.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	// A cancellation that won the race after the timer went off halts the
	// entry before we get here; honor it.
	e.mu.Lock()
	halted := e.stopped
	e.stopped = true
	e.mu.Unlock()
	if halted {
		return
	}

	rec := e.rec
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
	defer cancel()

	dest := s.resolve(ctx, rec)
	text := renderText(rec)
	if err := s.notif.Deliver(ctx, dest, text); err != nil {
		// Origin chat gone or send rejected: fall back to a DM once.
		if dest.ChatID != rec.OwnerID {
			dmErr := s.notif.Deliver(ctx, Destination{ChatID: rec.OwnerID}, text)
			if dmErr != nil {
				s.log.Warn("reminder delivery failed",
					logx.Int64("id", rec.ID), logx.Int64("owner", rec.OwnerID), logx.Err(dmErr))
			}
		} else {
			s.log.Warn("reminder delivery failed",
				logx.Int64("id", rec.ID), logx.Int64("owner", rec.OwnerID), logx.Err(err))
		}
	}

	// At-most-once: the record goes away even when delivery failed, so a
	// restart never redelivers it.
	if err := s.store.DeleteReminder(ctx, rec.ID, rec.OwnerID); err != nil {
		s.log.Warn("reminder cleanup failed", logx.Int64("id", rec.ID), logx.Err(err))
	}
	s.dropEntry(e)
	s.log.Debug("reminder fired", logx.Int64("id", rec.ID), logx.Int64("owner", rec.OwnerID))
}

// resolve picks the delivery destination: the origin chat by default, the
// owner's DMs when their preference asks for it or the origin is unusable.
func (s *Service) resolve(ctx context.Context, rec storage.Reminder) Destination {
	prefs, err := s.store.GetUserPrefs(ctx, rec.OwnerID)
	if err != nil {
		s.log.Warn("prefs lookup failed; using origin chat", logx.Int64("owner", rec.OwnerID), logx.Err(err))
	}
	if prefs.DMReminders {
		return Destination{ChatID: rec.OwnerID}
	}
	if chatID, ok := originChatID(rec.Origin); ok {
		return Destination{ChatID: chatID}
	}
	return Destination{ChatID: rec.OwnerID}
}

// originChatID extracts the chat id from an origin reference of the form
// "chatID/messageID".
func originChatID(origin string) (int64, bool) {
	head, _, ok := strings.Cut(origin, "/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(head), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func renderText(rec storage.Reminder) string {
	return rec.Content
}

// dropEntry removes e from the timer map if it is still the registered
// entry for its id.
func (s *Service) dropEntry(e *timerEntry) {
	s.mu.Lock()
	if cur, ok := s.timers[e.rec.ID]; ok && cur == e {
		delete(s.timers, e.rec.ID)
	}
	s.mu.Unlock()
}

// nextIDLocked derives a short id from the wall clock (the last six digits
// of unix seconds, the shape users see in chat) and bumps it past any id
// that is currently armed. Call with s.mu held.
func (s *Service) nextIDLocked(now time.Time) int64 {
	id := now.Unix() % 1_000_000
	if id == 0 {
		id = 1
	}
	for {
		if _, busy := s.timers[id]; !busy {
			return id
		}
		id++
	}
}
