// Package core drives the lifecycle of encrypted volumes.
//
// A volume's state is never stored. Probe derives it from the mount table
// and the filesystem; EnsureMounted walks it forward:
//
//	missing-dirs -> needs-init -> initializing -> ready-to-mount -> mounting -> mounted
//
// Unmount, ChangePassword and DeleteFromDisk complete the set. Sweep and
// RemovableWatcher mount volumes flagged for automount without asking to
// create or initialize anything.
package core
