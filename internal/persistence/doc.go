// Package persistence stores model attribute bags in SQLite.
//
// Each addressable model (device, hub, person, place or subsystem) is one
// row in the models table, keyed by its address, with its attributes held
// as a JSON object. The subsystem runtime reads a place's tracked models in
// bulk when it builds the place's executor, and writes subsystem models back
// as they change.
//
// # Delta writes
//
// Save inserts the full attribute set the first time an entity is written.
// After that it merges only the entity's dirty attributes, plus any
// attributes that failed to save on an earlier attempt, into the stored
// row. A nil value in the delta removes the attribute.
package persistence
