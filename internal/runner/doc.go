// Package runner executes the external encryption tool.
//
// Commands are always built as argument vectors and never passed through a
// shell. Secrets are delivered on stdin, so they never show up in argv or in
// the process list. The binary is resolved before spawning so callers can
// report a missing tool with remediation text instead of a raw exec error.
package runner
