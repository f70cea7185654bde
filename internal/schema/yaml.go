package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlFile is the YAML form of a schema. Roles and relations are lists so
// that declaration order survives decoding.
type yamlFile struct {
	Roles []yamlRole `yaml:"roles"`
}

type yamlRole struct {
	Name               string         `yaml:"name"`
	Table              string         `yaml:"table,omitempty"`
	Database           string         `yaml:"database,omitempty"`
	Primary            string         `yaml:"primary,omitempty"`
	Columns            []string       `yaml:"columns,omitempty"`
	Indexes            [][]string     `yaml:"indexes,omitempty"`
	Embeddable         bool           `yaml:"embeddable,omitempty"`
	Extends            string         `yaml:"extends,omitempty"`
	Discriminator      string         `yaml:"discriminator,omitempty"`
	DiscriminatorValue string         `yaml:"discriminator_value,omitempty"`
	Relations          []yamlRelation `yaml:"relations,omitempty"`
}

type yamlRelation struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Target   string `yaml:"target"`
	InnerKey string `yaml:"inner_key,omitempty"`
	OuterKey string `yaml:"outer_key,omitempty"`
	Cascade  bool   `yaml:"cascade,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// DecodeYAML reads role definitions from YAML. Unknown fields are rejected.
func DecodeYAML(data []byte) ([]Role, error) {
	var f yamlFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse schema YAML: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, &CompileError{Field: "roles", Message: "no roles declared"}
	}

	roles := make([]Role, 0, len(f.Roles))
	for i, yr := range f.Roles {
		if yr.Name == "" {
			return nil, &CompileError{Field: fmt.Sprintf("roles[%d].name", i), Message: "role name is required"}
		}
		role := Role{
			Name:               yr.Name,
			Table:              yr.Table,
			Database:           yr.Database,
			PrimaryKey:         yr.Primary,
			Columns:            yr.Columns,
			Indexes:            yr.Indexes,
			Embeddable:         yr.Embeddable,
			Extends:            yr.Extends,
			Discriminator:      yr.Discriminator,
			DiscriminatorValue: yr.DiscriminatorValue,
		}
		for j, yrel := range yr.Relations {
			field := fmt.Sprintf("roles[%d].relations[%d]", i, j)
			if yrel.Name == "" || yrel.Target == "" {
				return nil, &CompileError{Field: field, Message: "relation name and target are required"}
			}
			typ, err := ParseRelationType(yrel.Type)
			if err != nil {
				return nil, &CompileError{Field: field + ".type", Message: err.Error()}
			}
			role.Relations = append(role.Relations, Relation{
				Name:     yrel.Name,
				Type:     typ,
				Target:   yrel.Target,
				InnerKey: yrel.InnerKey,
				OuterKey: yrel.OuterKey,
				Cascade:  yrel.Cascade,
				Nullable: yrel.Nullable,
				Prefix:   yrel.Prefix,
			})
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// LoadYAML decodes YAML role definitions and builds a Registry from them.
func LoadYAML(data []byte) (*Registry, error) {
	roles, err := DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(roles...)
}

// LoadFile builds a Registry from a .cue, .yaml or .yml file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(data, path)
	case ".yaml", ".yml":
		return LoadYAML(data)
	}
	return nil, fmt.Errorf("unsupported schema file %q (want .cue, .yaml or .yml)", path)
}
