package core

import "fmt"

// MountState is derived from the filesystem and the live mount table. It is
// never persisted.
type MountState int

const (
	StateUnknown MountState = iota
	StateMissingDirs
	StateNeedsInit
	StateInitializing
	StateReadyToMount
	StateMounting
	StateMounted
	StateUnmounting
	StateUnmounted
	StateError
)

var stateNames = map[MountState]string{
	StateUnknown:      "unknown",
	StateMissingDirs:  "missing-dirs",
	StateNeedsInit:    "needs-init",
	StateInitializing: "initializing",
	StateReadyToMount: "ready-to-mount",
	StateMounting:     "mounting",
	StateMounted:      "mounted",
	StateUnmounting:   "unmounting",
	StateUnmounted:    "unmounted",
	StateError:        "error",
}

func (s MountState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transient reports whether s only exists while an operation runs.
func (s MountState) Transient() bool {
	switch s {
	case StateInitializing, StateReadyToMount, StateMounting, StateUnmounting:
		return true
	}
	return false
}
