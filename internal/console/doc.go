// Package console echoes executed command lines to an optional surface.
//
// A Detector probes for a backend (a transcript file or a terminal) and
// collects install guidance for gocryptfs. SelectProvider maps a Detection to
// a Provider; when echoing is disabled or nothing was found a null provider is
// used whose surface carries guidance instead of failing. Echoing is purely
// diagnostic, so writes never return errors.
package console
