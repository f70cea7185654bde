// Package command implements the command tree executed by a unit of work.
//
// Leaves are storage commands (Insert, Update, Delete) bound to one table of
// one database. Inner nodes are combinators:
//
//   - Sequence groups commands; nested sequences are flattened on iteration.
//   - Condition includes its command only while a predicate holds. The
//     predicate is evaluated each time the tree is iterated.
//   - Split pairs a head and a tail writing the same row. Values registered
//     before the head ran go to the head, later ones to the tail. This breaks
//     reference cycles by deferring one column write to a follow-up UPDATE.
//   - Merge folds the columns of several commands into one write.
//   - Wrapped adds hooks around an executable command.
//
// Commands never block on missing values. A command declares what it needs
// with WaitContext; whoever produces the value calls Register, usually
// through heap.State forwarding. The runner executes whatever IsReady.
package command
