// Package pool holds the work of one unit-of-work run: one Tuple per entity
// to store or delete.
//
// TupleStorage may grow and shrink while it is being iterated. Tuples
// attached during an iteration are visited by it; tuples detached before an
// iterator reached them are skipped. Every iterator keeps its own cursor, so
// several can be open at once.
package pool
