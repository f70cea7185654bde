// Package orm wires the persistence core into a usable mapper: a schema
// registry, an identity map, drivers per database and a command generator
// that turns entities and their relations into the command tree a
// transaction.UnitOfWork executes.
//
// Entities are opaque to the core. The Mapper decides how a Go value maps to
// a role and its column data; EntityMapper handles the dynamic *Entity
// record used by the CLI and the scenario harness.
package orm
