// Package transfer wraps the ssh and rsync binaries behind a small client
// used for pushes: authentication probe, remote directory creation, mirror
// sync, and remote sentinel touch.
package transfer
