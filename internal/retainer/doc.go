// Package retainer prunes the archive of pushed artifacts.
//
// Each cycle removes archived directories older than the retention window,
// then, when a free-space floor is configured, removes the oldest remaining
// directories until the filesystem clears the floor. When the archive is
// exhausted and the floor still cannot be met, the shortfall is logged and
// published to the notification channel.
package retainer
