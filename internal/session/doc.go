// Package session keeps per-session view state: the filter selections a user
// made, the last remote fingerprint the session has seen and a memo of the
// last rendered result.
//
// State is a small key-value store with default-then-override semantics:
// the first read of a key seeds it with the supplied default and later reads
// return whatever was last set. Reset overwrites every key of the supplied
// defaults at once. Manager owns the sessions, hands out uuid ids and tears
// idle sessions down. Nothing is persisted.
package session
