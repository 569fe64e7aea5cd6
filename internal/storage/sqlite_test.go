package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "reminders.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestReminderRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	deadline := time.Date(2026, 9, 1, 18, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	r := Reminder{ID: 481234, OwnerID: 42, Content: "buy milk", Deadline: deadline, Origin: "-100123/55"}
	if err := st.InsertReminder(ctx, r); err != nil {
		t.Fatalf("InsertReminder: %v", err)
	}

	got, err := st.ListReminders(ctx)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(got))
	}
	if got[0].ID != r.ID || got[0].OwnerID != r.OwnerID || got[0].Content != r.Content || got[0].Origin != r.Origin {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
	if !got[0].Deadline.Equal(deadline) {
		t.Fatalf("deadline = %v, want %v", got[0].Deadline, deadline)
	}
}

func TestDeleteReminderIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	r := Reminder{ID: 1, OwnerID: 7, Content: "x", Deadline: time.Now().Add(time.Hour)}
	if err := st.InsertReminder(ctx, r); err != nil {
		t.Fatalf("InsertReminder: %v", err)
	}
	if err := st.DeleteReminder(ctx, 1, 7); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := st.DeleteReminder(ctx, 1, 7); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if err := st.DeleteReminder(ctx, 999, 7); err != nil {
		t.Fatalf("deleting unknown id should be a no-op: %v", err)
	}

	got, err := st.ListReminders(ctx)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty store, got %d rows", len(got))
	}
}

func TestDeleteReminderScopedToOwner(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.InsertReminder(ctx, Reminder{ID: 5, OwnerID: 1, Content: "a", Deadline: time.Now()}); err != nil {
		t.Fatalf("InsertReminder: %v", err)
	}
	// Wrong owner must not delete someone else's reminder.
	if err := st.DeleteReminder(ctx, 5, 2); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	n, err := st.CountOwnerReminders(ctx, 1)
	if err != nil {
		t.Fatalf("CountOwnerReminders: %v", err)
	}
	if n != 1 {
		t.Fatalf("reminder deleted by non-owner, count = %d", n)
	}
}

func TestListOwnerReminders(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i, owner := range []int64{1, 1, 2} {
		r := Reminder{ID: int64(i + 1), OwnerID: owner, Content: "c", Deadline: time.Now().Add(time.Hour)}
		if err := st.InsertReminder(ctx, r); err != nil {
			t.Fatalf("InsertReminder: %v", err)
		}
	}
	got, err := st.ListOwnerReminders(ctx, 1)
	if err != nil {
		t.Fatalf("ListOwnerReminders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 reminders for owner 1, got %d", len(got))
	}
	for _, r := range got {
		if r.OwnerID != 1 {
			t.Fatalf("foreign reminder in owner list: %+v", r)
		}
	}
}

func TestUserPrefsUpsert(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p, err := st.GetUserPrefs(ctx, 42)
	if err != nil {
		t.Fatalf("GetUserPrefs (absent): %v", err)
	}
	if p.DMReminders {
		t.Fatal("default dm_reminders should be false")
	}

	if err := st.SetUserPrefs(ctx, UserPrefs{UserID: 42, DMReminders: true}); err != nil {
		t.Fatalf("SetUserPrefs: %v", err)
	}
	p, err = st.GetUserPrefs(ctx, 42)
	if err != nil {
		t.Fatalf("GetUserPrefs: %v", err)
	}
	if !p.DMReminders {
		t.Fatal("dm_reminders should be true after set")
	}

	if err := st.SetUserPrefs(ctx, UserPrefs{UserID: 42, DMReminders: false}); err != nil {
		t.Fatalf("SetUserPrefs (update): %v", err)
	}
	p, _ = st.GetUserPrefs(ctx, 42)
	if p.DMReminders {
		t.Fatal("dm_reminders should be false after update")
	}
}
