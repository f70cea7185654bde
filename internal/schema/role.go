package schema

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultDatabase is the database of roles that do not name one.
const DefaultDatabase = "default"

// RelationType is the kind of link between two roles.
type RelationType int

const (
	// BelongsTo: the owner row carries a required key of the target.
	BelongsTo RelationType = iota + 1
	// RefersTo: like BelongsTo, but the key may be written after both rows
	// exist. It is the only relation that can break a reference cycle.
	RefersTo
	// HasOne: the target row carries the owner key.
	HasOne
	// HasMany: every target row carries the owner key.
	HasMany
	// Embedded: the target columns are stored in the owner row.
	Embedded
)

var relationNames = map[RelationType]string{
	BelongsTo: "belongsTo",
	RefersTo:  "refersTo",
	HasOne:    "hasOne",
	HasMany:   "hasMany",
	Embedded:  "embedded",
}

func (t RelationType) String() string {
	if name, ok := relationNames[t]; ok {
		return name
	}
	return fmt.Sprintf("relation(%d)", int(t))
}

// ParseRelationType parses a relation type name, case-insensitively.
func ParseRelationType(s string) (RelationType, error) {
	for t, name := range relationNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown relation type %q", s)
}

// OwnsKey reports whether the owner row stores the key of the relation.
func (t RelationType) OwnsKey() bool {
	return t == BelongsTo || t == RefersTo
}

// Relation links an owner role to a target role.
//
// For BelongsTo and RefersTo, InnerKey is the owner column holding the
// target's OuterKey. For HasOne and HasMany, InnerKey is the owner column
// (usually its primary key) copied into the target's OuterKey column.
type Relation struct {
	Name     string
	Type     RelationType
	Target   string
	InnerKey string
	OuterKey string
	// Cascade stores (or deletes) the related entities together with the
	// owner.
	Cascade  bool
	Nullable bool
	// Prefix is prepended to the column names of an Embedded target.
	Prefix string
}

// Role describes one kind of entity.
type Role struct {
	Name       string
	Table      string
	Database   string
	PrimaryKey string
	Columns    []string
	Indexes    [][]string
	Relations  []Relation

	// Embeddable roles have no table of their own and can only be the target
	// of an Embedded relation.
	Embeddable bool

	// Extends names the parent role. Child roles share the table of their
	// root role and are told apart by the Discriminator column.
	Extends            string
	Discriminator      string
	DiscriminatorValue string
}

// Relation returns the relation called name.
func (r *Role) Relation(name string) (Relation, bool) {
	for _, rel := range r.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// HasColumn reports whether column belongs to the role.
func (r *Role) HasColumn(column string) bool {
	return slices.Contains(r.Columns, column)
}

func (r *Role) clone() *Role {
	c := *r
	c.Columns = slices.Clone(r.Columns)
	c.Relations = slices.Clone(r.Relations)
	c.Indexes = make([][]string, len(r.Indexes))
	for i, idx := range r.Indexes {
		c.Indexes[i] = slices.Clone(idx)
	}
	return &c
}
