package store

import (
	"context"
	"fmt"

	"github.com/roach88/orbit/internal/schema"
)

// CreateTables creates the table of every root role in reg if it does not
// exist yet. Only SQLite is supported.
func (s *Store) CreateTables(ctx context.Context, reg *schema.Registry) error {
	for _, name := range reg.Roles() {
		role, err := reg.Role(name)
		if err != nil {
			return err
		}
		if role.Embeddable || role.Extends != "" {
			continue
		}
		ddl, err := s.compiler.CreateTable(role.Table, role.PrimaryKey, reg.StorageColumns(name))
		if err != nil {
			return fmt.Errorf("role %s: %w", name, err)
		}
		if _, err := s.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", role.Table, err)
		}
	}
	return nil
}
