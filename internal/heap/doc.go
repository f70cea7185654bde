// Package heap implements the identity map and the per-entity change
// tracking used by the unit of work.
//
// Every tracked entity owns exactly one Node. A Node holds the last
// synchronized column data (the snapshot) and, while a persistence pass is
// running, an overlay State with the pending writes. The overlay is created
// on first write and dropped by SyncState once the pass committed.
//
// # Forwarding
//
// A State can forward a field to other consumers. When a value is
// registered for the field it is pushed to every subscriber at once; this is
// how a primary key generated by an INSERT reaches the foreign key of a
// dependent row without any read query:
//
//	user := heap.NewNode("user", heap.StatusNew, nil)
//	comment := heap.NewNode("comment", heap.StatusNew, nil)
//	comment.State().WaitField("user_id", true)
//	user.State().Forward("id", comment.State(), "user_id", true, heap.StreamData)
//	user.State().Register("id", 7, true, heap.StreamData)
//	// comment.State() now holds user_id=7 and is ready.
//
// # Concurrency
//
// Nothing in this package locks. A Heap belongs to one unit of work at a
// time; callers sharing a heap across goroutines must serialize access.
package heap
