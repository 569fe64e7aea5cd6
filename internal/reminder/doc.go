// Package reminder schedules user-requested deferred notifications.
//
// The Service owns one in-memory timer per pending reminder, keyed by
// reminder id. A reminder is created by persisting its record first and
// arming the timer second, so a crash between the two steps loses the timer
// but never the reminder: Recover re-arms every surviving record at startup.
// Delivery is at-most-once — once a fire attempt has started, the durable
// record is deleted whether or not the send succeeded.
package reminder
