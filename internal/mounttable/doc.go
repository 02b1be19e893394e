// Package mounttable enumerates mounted gocryptfs filesystems.
//
// The live table comes from the kernel via mountinfo. A FileSource parses a
// saved listing instead, which is how tests and non-Linux hosts feed a table.
package mounttable
