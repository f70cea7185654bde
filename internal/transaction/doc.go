// Package transaction runs a unit of work: it turns the entities registered
// for store or delete into a command tree, executes the tree inside a
// transaction and reconciles the identity map afterward.
//
// A run has two phases. The build phase walks the pool and asks the
// Generator for one command per tuple; tuples discovered while generating
// (cascaded relations) are generated in the same walk. Errors here are
// returned from Run directly.
//
// The execute phase is a sequence of passes over the tree. A strict pass
// executes every ready command that has no optional context left. When a
// strict pass makes no progress, a relaxed pass executes the first ready
// command regardless of optional context; that is where a reference cycle
// gets broken. When neither pass makes progress the tree has an unresolved
// dependency.
//
// Execution failures do not escape Run: they are captured in a Result that
// can be retried once the cause is fixed. Before a Result is returned every
// executed command is rolled back (in reverse order) and every node state is
// restored, so a retry sees the tree exactly as it was built.
package transaction
