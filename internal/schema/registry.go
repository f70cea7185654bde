package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Registry is the validated set of roles. It is immutable once built and
// safe for concurrent use.
type Registry struct {
	roles    map[string]*Role
	children map[string][]string
}

// NewRegistry validates roles, fills relation defaults and resolves
// inheritance. All problems are reported at once, joined.
func NewRegistry(roles ...Role) (*Registry, error) {
	r := &Registry{
		roles:    make(map[string]*Role, len(roles)),
		children: make(map[string][]string),
	}

	var errs []error
	for i := range roles {
		role := roles[i].clone()
		if _, dup := r.roles[role.Name]; dup {
			errs = append(errs, ValidationError{Role: role.Name, Message: "role defined more than once", Code: ErrCodeDuplicateRole})
			continue
		}
		r.roles[role.Name] = role
	}

	errs = append(errs, r.resolveInheritance()...)
	for _, name := range r.Roles() {
		errs = append(errs, r.complete(r.roles[name])...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Roles returns every role name, sorted.
func (r *Registry) Roles() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Role returns the role called name.
func (r *Registry) Role(name string) (*Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, name)
	}
	return role, nil
}

// PrimaryKey returns the primary key column of role, or "" for an unknown
// or embeddable role.
func (r *Registry) PrimaryKey(role string) string {
	if ro, ok := r.roles[role]; ok {
		return ro.PrimaryKey
	}
	return ""
}

// Indexes returns the identity-map index definitions of role: the primary
// key first, then the declared unique indexes.
func (r *Registry) Indexes(role string) [][]string {
	ro, ok := r.roles[role]
	if !ok || ro.PrimaryKey == "" {
		return nil
	}
	out := [][]string{{ro.PrimaryKey}}
	for _, idx := range ro.Indexes {
		out = append(out, slices.Clone(idx))
	}
	return out
}

// Children returns the roles that directly extend role, sorted.
func (r *Registry) Children(role string) []string {
	return slices.Clone(r.children[role])
}

// Descendants returns every role below role in the inheritance tree.
func (r *Registry) Descendants(role string) []string {
	var out []string
	for _, child := range r.children[role] {
		out = append(out, child)
		out = append(out, r.Descendants(child)...)
	}
	return out
}

// RoleFor maps a discriminator value read from the table of root back to
// the role that stored it.
func (r *Registry) RoleFor(root, discriminator string) (string, bool) {
	candidates := append([]string{root}, r.Descendants(root)...)
	for _, name := range candidates {
		if r.roles[name].DiscriminatorValue == discriminator {
			return name, true
		}
	}
	return "", false
}

// resolveInheritance copies storage settings, columns and relations from
// parents into child roles, parents first.
func (r *Registry) resolveInheritance() []error {
	var errs []error
	done := make(map[string]bool)
	visiting := make(map[string]bool)

	var resolve func(role *Role) bool
	resolve = func(role *Role) bool {
		if done[role.Name] {
			return true
		}
		if role.Extends == "" {
			done[role.Name] = true
			return true
		}
		if visiting[role.Name] {
			errs = append(errs, ValidationError{Role: role.Name, Field: "extends", Message: "inheritance chain loops", Code: ErrCodeInheritanceCycle})
			return false
		}
		parent, ok := r.roles[role.Extends]
		if !ok {
			errs = append(errs, ValidationError{Role: role.Name, Field: "extends", Message: fmt.Sprintf("unknown parent role %q", role.Extends), Code: ErrCodeUnknownParent})
			return false
		}

		visiting[role.Name] = true
		ok = resolve(parent)
		delete(visiting, role.Name)
		if !ok {
			return false
		}

		if parent.Discriminator == "" {
			errs = append(errs, ValidationError{Role: parent.Name, Field: "discriminator", Message: "extended role needs a discriminator column", Code: ErrCodeDiscriminator})
			return false
		}
		role.Table = parent.Table
		role.Database = parent.Database
		role.PrimaryKey = parent.PrimaryKey
		role.Discriminator = parent.Discriminator

		columns := slices.Clone(parent.Columns)
		for _, c := range role.Columns {
			if !slices.Contains(columns, c) {
				columns = append(columns, c)
			}
		}
		role.Columns = columns
		role.Relations = append(slices.Clone(parent.Relations), role.Relations...)
		role.Indexes = append(slices.Clone(parent.Indexes), role.Indexes...)

		r.children[parent.Name] = append(r.children[parent.Name], role.Name)
		done[role.Name] = true
		return true
	}

	for _, name := range r.Roles() {
		resolve(r.roles[name])
	}
	for parent := range r.children {
		sort.Strings(r.children[parent])
	}
	return errs
}

// complete validates a role and fills its defaults.
func (r *Registry) complete(role *Role) []error {
	var errs []error
	fail := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Role: role.Name, Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if role.Database == "" {
		role.Database = DefaultDatabase
	}
	if role.Discriminator != "" && role.DiscriminatorValue == "" {
		role.DiscriminatorValue = role.Name
	}
	if !role.Embeddable {
		if role.Table == "" {
			fail("table", ErrCodeMissingTable, "table is required")
		}
		if role.PrimaryKey == "" {
			fail("primary", ErrCodeMissingPrimary, "primary key is required")
		} else if !role.HasColumn(role.PrimaryKey) {
			role.Columns = append([]string{role.PrimaryKey}, role.Columns...)
		}
		if role.Discriminator != "" && !role.HasColumn(role.Discriminator) {
			role.Columns = append(role.Columns, role.Discriminator)
		}
	}

	seen := make(map[string]bool)
	for i := range role.Relations {
		rel := &role.Relations[i]
		field := "relations." + rel.Name
		if seen[rel.Name] {
			fail(field, ErrCodeDuplicateName, "relation defined more than once")
			continue
		}
		seen[rel.Name] = true

		target, ok := r.roles[rel.Target]
		if !ok {
			fail(field, ErrCodeUnknownTarget, "unknown target role %q", rel.Target)
			continue
		}
		if (rel.Type == Embedded) != target.Embeddable {
			if rel.Type == Embedded {
				fail(field, ErrCodeInvalidRelation, "embedded target %q is not embeddable", rel.Target)
			} else {
				fail(field, ErrCodeInvalidRelation, "%s relation cannot target embeddable role %q", rel.Type, rel.Target)
			}
			continue
		}

		switch rel.Type {
		case BelongsTo, RefersTo:
			if rel.OuterKey == "" {
				rel.OuterKey = r.rootOf(target).PrimaryKey
			}
			if rel.InnerKey == "" {
				rel.InnerKey = rel.Name + "_" + rel.OuterKey
			}
			if rel.Type == RefersTo {
				rel.Nullable = true
			}
			if !role.HasColumn(rel.InnerKey) {
				role.Columns = append(role.Columns, rel.InnerKey)
			}
		case HasOne, HasMany:
			if rel.InnerKey == "" {
				rel.InnerKey = r.rootOf(role).PrimaryKey
			}
			if rel.OuterKey == "" {
				rel.OuterKey = r.rootOf(role).Name + "_" + rel.InnerKey
			}
		case Embedded:
		default:
			fail(field, ErrCodeInvalidRelation, "invalid relation type %s", rel.Type)
		}
	}
	return errs
}

// rootOf walks up the inheritance tree. It tolerates unknown parents and
// loops, which are reported elsewhere.
func (r *Registry) rootOf(role *Role) *Role {
	for range len(r.roles) {
		parent, ok := r.roles[role.Extends]
		if role.Extends == "" || !ok {
			break
		}
		role = parent
	}
	return role
}

// Root returns the name of the root role of name's inheritance tree.
func (r *Registry) Root(name string) string {
	role, ok := r.roles[name]
	if !ok {
		return name
	}
	return r.rootOf(role).Name
}

// StorageColumns returns every column of the table behind role: its own
// columns, the prefixed columns of embedded roles, and for a root role the
// columns added by its descendants.
func (r *Registry) StorageColumns(role string) []string {
	ro, ok := r.roles[role]
	if !ok || ro.Embeddable {
		return nil
	}
	var out []string
	add := func(c string) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	for _, name := range append([]string{role}, r.Descendants(role)...) {
		member := r.roles[name]
		for _, c := range member.Columns {
			add(c)
		}
		for _, rel := range member.Relations {
			if rel.Type != Embedded {
				continue
			}
			for _, c := range r.roles[rel.Target].Columns {
				add(rel.Prefix + c)
			}
		}
	}
	return out
}
