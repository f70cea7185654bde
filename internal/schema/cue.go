package schema

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// CompileCUE reads the roles declared under the top-level "role" struct of
// v, in declaration order:
//
//	role: user: {
//		table:   "users"
//		primary: "id"
//		columns: ["id", "name"]
//		relations: comments: {type: "hasMany", target: "comment", cascade: true}
//	}
func CompileCUE(v cue.Value) ([]Role, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rolesVal := v.LookupPath(cue.ParsePath("role"))
	if !rolesVal.Exists() {
		return nil, &CompileError{Field: "role", Message: "no roles declared", Pos: v.Pos()}
	}
	iter, err := rolesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var roles []Role
	for iter.Next() {
		role, err := compileRole(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// LoadCUE compiles CUE source and builds a Registry from it.
func LoadCUE(src []byte, filename string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	roles, err := CompileCUE(v)
	if err != nil {
		return nil, err
	}
	return NewRegistry(roles...)
}

func compileRole(name string, v cue.Value) (Role, error) {
	role := Role{Name: name}
	var err error

	if role.Table, err = optionalString(v, "table"); err != nil {
		return role, err
	}
	if role.Database, err = optionalString(v, "database"); err != nil {
		return role, err
	}
	if role.PrimaryKey, err = optionalString(v, "primary"); err != nil {
		return role, err
	}
	if role.Extends, err = optionalString(v, "extends"); err != nil {
		return role, err
	}
	if role.Discriminator, err = optionalString(v, "discriminator"); err != nil {
		return role, err
	}
	if role.DiscriminatorValue, err = optionalString(v, "discriminatorValue"); err != nil {
		return role, err
	}
	if role.Embeddable, err = optionalBool(v, "embeddable"); err != nil {
		return role, err
	}
	if role.Columns, err = stringList(v.LookupPath(cue.ParsePath("columns"))); err != nil {
		return role, err
	}

	if idxVal := v.LookupPath(cue.ParsePath("indexes")); idxVal.Exists() {
		it, err := idxVal.List()
		if err != nil {
			return role, formatCUEError(err)
		}
		for it.Next() {
			fields, err := stringList(it.Value())
			if err != nil {
				return role, err
			}
			role.Indexes = append(role.Indexes, fields)
		}
	}

	if relVal := v.LookupPath(cue.ParsePath("relations")); relVal.Exists() {
		it, err := relVal.Fields()
		if err != nil {
			return role, formatCUEError(err)
		}
		for it.Next() {
			rel, err := compileRelation(it.Label(), it.Value())
			if err != nil {
				return role, err
			}
			role.Relations = append(role.Relations, rel)
		}
	}

	return role, nil
}

func compileRelation(name string, v cue.Value) (Relation, error) {
	rel := Relation{Name: name}

	typeName, err := optionalString(v, "type")
	if err != nil {
		return rel, err
	}
	if typeName == "" {
		return rel, &CompileError{Field: "relations." + name + ".type", Message: "relation type is required", Pos: v.Pos()}
	}
	if rel.Type, err = ParseRelationType(typeName); err != nil {
		return rel, &CompileError{Field: "relations." + name + ".type", Message: err.Error(), Pos: v.Pos()}
	}

	if rel.Target, err = optionalString(v, "target"); err != nil {
		return rel, err
	}
	if rel.Target == "" {
		return rel, &CompileError{Field: "relations." + name + ".target", Message: "relation target is required", Pos: v.Pos()}
	}
	if rel.InnerKey, err = optionalString(v, "innerKey"); err != nil {
		return rel, err
	}
	if rel.OuterKey, err = optionalString(v, "outerKey"); err != nil {
		return rel, err
	}
	if rel.Prefix, err = optionalString(v, "prefix"); err != nil {
		return rel, err
	}
	if rel.Cascade, err = optionalBool(v, "cascade"); err != nil {
		return rel, err
	}
	if rel.Nullable, err = optionalBool(v, "nullable"); err != nil {
		return rel, err
	}
	return rel, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	it, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for it.Next() {
		s, err := it.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
