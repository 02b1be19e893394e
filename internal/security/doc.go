// Package security validates filesystem paths before destructive operations.
//
// Everything here only reads the filesystem:
//   - Resolve expands "~", cleans, and evaluates symlinks while remembering
//     whether the supplied path was itself a link
//   - CountEntries performs a bounded directory scan
//   - ValidateForDeletion rejects the root and home directories outright and
//     asks for an explicit confirmation token outside the allowed roots
package security
