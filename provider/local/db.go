package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens a Bun database on dsn. Use "file::memory:?cache=shared"
// for a throwaway database.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("local: open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the tables the backend needs.
func Migrate(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*User)(nil),
		(*PasswordReset)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("local: create table: %w", err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*User)(nil)).
		Index("users_confirmation_token_idx").
		IfNotExists().
		Column("confirmation_token").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("local: create index: %w", err)
	}

	return nil
}
