// Package harness runs persistence scenarios against a real SQLite store.
//
// A scenario names a schema, seeds rows, declares entities (new or loaded
// from the seed) and runs one or more units of work over them. Every write
// the store executes is recorded into a statement trace, which scenarios
// assert on and which golden files pin down byte for byte.
//
// Scenario files are YAML:
//
//	name: user_comment
//	description: a comment and its new author are inserted in one run
//	schema: ../schemas/blog.cue
//	entities:
//	  ann:
//	    role: user
//	    fields: {name: ann}
//	  hello:
//	    role: comment
//	    fields: {body: hello}
//	    links: {user: ann}
//	units:
//	  - persist: [hello]
//	assertions:
//	  - type: statement_order
//	    statements: [insert users, insert comments]
//
// Each Run uses its own database (in memory unless WithDatabase is given),
// a fixed run ID and sorted entity names, so traces are deterministic.
package harness
