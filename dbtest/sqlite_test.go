package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/explorer"
	"github.com/jadedragon942/dbharbor/session"
)

func TestSQLite(t *testing.T) {
	ex, err := explorer.Open(context.Background(), session.Config{
		Engine: dialect.SQLite,
		Host:   filepath.Join(t.TempDir(), "conformance.db"),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer ex.Close()

	Run(t, ex)
}
