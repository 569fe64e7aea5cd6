// Package storage is the durable record layer for pending reminders and
// per-user delivery preferences.
//
// Presence of a reminder row is the sole "pending" flag: a row exists iff
// the reminder has neither fired nor been cancelled. There is no status
// column; callers must treat DeleteReminder as idempotent.
package storage
