// Package scheduler runs the bot's periodic ticks and one-shot timers.
//
// Repeating schedules (cron or interval) are driven by robfig/cron with
// SkipIfStillRunning, so a slow tick is never re-entered. One-shot timers
// are upserted by name and use an injectable clock so tests can advance time.
package scheduler
