package store

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestSchemaGolden(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "postgres_schema", []byte(Schema(Postgres)))
	g.Assert(t, "sqlite_schema", []byte(Schema(SQLite)))
}
