package database

import (
	"testing"

	"github.com/asakaida/remotemodel/internal/infrastructure/config"
)

func TestDB_Close(t *testing.T) {
	tests := []struct {
		name    string
		db      *DB
		wantErr bool
	}{
		{name: "nil DB", db: nil},
		{name: "nil sql.DB", db: &DB{Dialect: DialectPostgres}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.db.Close()
			if (err != nil) != tt.wantErr {
				t.Errorf("DB.Close() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDB_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{
			name:    "postgres placeholders",
			dialect: DialectPostgres,
			query:   "SELECT data FROM model_records WHERE model = ? AND id = ?",
			want:    "SELECT data FROM model_records WHERE model = $1 AND id = $2",
		},
		{
			name:    "quoted question mark",
			dialect: DialectPostgres,
			query:   "SELECT '?' FROM t WHERE a = ?",
			want:    "SELECT '?' FROM t WHERE a = $1",
		},
		{
			name:    "sqlite unchanged",
			dialect: DialectSQLite,
			query:   "SELECT data FROM model_records WHERE model = ?",
			want:    "SELECT data FROM model_records WHERE model = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &DB{Dialect: tt.dialect}
			if got := db.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewPostgres_InvalidConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     99999,
		User:     "invalid",
		Password: "invalid",
		Database: "invalid",
		SSLMode:  "disable",
	}

	db, err := NewPostgres(cfg)
	if err == nil {
		db.Close()
		t.Error("NewPostgres() with invalid config should return error")
	}
}

func TestMigrator_RejectsSQLite(t *testing.T) {
	db := &DB{Dialect: DialectSQLite}
	if _, err := db.Migrator(); err == nil {
		t.Error("expected an error for sqlite")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := postgresMigrations.ReadDir("migrations/postgres")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Errorf("expected paired up/down migrations, got %d files", len(entries))
	}
}
