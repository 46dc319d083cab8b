// Package place provides the place record lookups the subsystem runtime
// needs: resolving a place, and the account that owns it, before a
// place's executor is built.
//
// Places are owned by the platform; this package only reads and writes
// the local copy kept in the SQLite database.
package place
