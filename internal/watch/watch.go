// Package watch detects candidate recordings, both in the local recordings
// directory and in the shared synced folder. Detection is push-based via
// fsnotify with a polling fallback for the shared folder, since sync clients
// can land files without firing (or before we see) a notification.
package watch

// Enqueuer is the queue-facing contract; every accepted candidate goes
// through it regardless of which path detected the file.
type Enqueuer interface {
	Enqueue(audioFileName, audioPath, source string) error
}
