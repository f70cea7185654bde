// Package schema describes entity roles: the table a role is stored in, its
// primary key and indexes, and the relations that link it to other roles.
//
// A Registry is built from role definitions written in CUE or YAML. Building
// it fills relation key defaults, resolves single-table inheritance and
// validates references between roles. AnalyzeCycles reports reference cycles
// between roles; only cycles that pass through a RefersTo relation can be
// broken at persistence time.
package schema
