// Package value holds the column-value helpers shared by the identity map
// and the change tracker.
//
// Column values arrive from two directions: from entities (whatever Go type
// the mapper extracted) and from the storage driver (whatever the database
// driver scanned). The same logical value can therefore show up as bool,
// int64, float64 or string depending on where it came from. Equal treats
// those representations as the same value so that a load-then-save round
// trip does not produce spurious UPDATE statements.
//
// # Equality table
//
//	a        b         Equal
//	nil      nil       true
//	nil      ""        false   (null is never equal to a non-null value)
//	true     true      true
//	true     1         true    (bool compares as 0/1)
//	0        false     true
//	1        "1"       true    (numeric strings compare numerically)
//	2        "1"       false
//	3        3.0       true
//	""       false     false   (empty string never equals a non-string)
//	""       0         false
//	"abc"    true      false   (non-numeric strings only equal strings)
//	[]byte   string    true when the bytes are identical
//
// Key produces the index form of a value so that values which are Equal by
// the table above land on the same identity-map index slot.
package value
