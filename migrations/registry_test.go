package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	botpoll "github.com/goliatone/go-botpoll"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	found := map[string]bool{}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 %s up migrations, got %v", entry.Dialect, matches)
		}
		found[entry.Dialect] = true
	}
	if !found[DialectPostgres] || !found[DialectSQLite] {
		t.Fatalf("expected postgres and sqlite filesystems, got %v", found)
	}
}

func TestFilesystems_AcceptsFlatSource(t *testing.T) {
	flat := fstest.MapFS{
		"00001_init.up.sql":          {Data: []byte("SELECT 1;")},
		"00001_init.down.sql":        {Data: []byte("SELECT 1;")},
		"sqlite/00001_init.up.sql":   {Data: []byte("SELECT 1;")},
		"sqlite/00001_init.down.sql": {Data: []byte("SELECT 1;")},
	}
	filesystems, err := Filesystems(flat)
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if filesystems[0].Path != "." || filesystems[1].Path != "sqlite" {
		t.Fatalf("expected flat paths, got %q and %q", filesystems[0].Path, filesystems[1].Path)
	}
}

func TestFilesystems_RejectsEmptyDialect(t *testing.T) {
	flat := fstest.MapFS{
		"00001_init.up.sql": {Data: []byte("SELECT 1;")},
		"sqlite/README":     {Data: []byte("none")},
	}
	if _, err := Filesystems(flat); err == nil {
		t.Fatalf("expected error for sqlite tree without migrations")
	}
}

func TestFilesystems_RejectsMissingDownMigration(t *testing.T) {
	flat := fstest.MapFS{
		"00001_init.up.sql":        {Data: []byte("SELECT 1;")},
		"00001_init.down.sql":      {Data: []byte("SELECT 1;")},
		"sqlite/00001_init.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := Filesystems(flat)
	if err == nil || !strings.Contains(err.Error(), "00001_init.down.sql") {
		t.Fatalf("expected missing sqlite down migration error, got %v", err)
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect+":"+label)
		return nil
	}, WithValidationTargets(" SQLite "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != "sqlite:go-botpoll" {
		t.Fatalf("expected single sqlite registration, got %v", calls)
	}
	if reg.SourceLabel != "go-botpoll" {
		t.Fatalf("expected default source label, got %q", reg.SourceLabel)
	}
}

func TestRegister_PropagatesRegisterErrors(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return fmt.Errorf("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil register func")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := botpoll.GetMigrationsFS()
	names := []string{
		"00001_botpoll_update_cursors",
		"00002_botpoll_rate_limit_states",
	}
	for _, name := range names {
		for _, dir := range []string{"data/sql/migrations", "data/sql/migrations/sqlite"} {
			for _, direction := range []string{"up", "down"} {
				migrationPath := fmt.Sprintf("%s/%s.%s.sql", dir, name, direction)
				content, err := fs.ReadFile(root, migrationPath)
				if err != nil {
					t.Fatalf("read migration %s: %v", migrationPath, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected migration %s to have SQL content", migrationPath)
				}
			}
		}
	}
}

func TestSQLiteCursorMigration_ApplyAndRollback(t *testing.T) {
	dsn := fmt.Sprintf("file:migrations-cursors-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(botpoll.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_botpoll_update_cursors.up.sql"); err != nil {
		t.Fatalf("apply cursor migration up: %v", err)
	}

	insert := `INSERT INTO bot_update_cursors (id, bot_id, next_offset) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "c1", "bot-a", 10); err != nil {
		t.Fatalf("insert cursor: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "c2", "bot-a", 11); err == nil {
		t.Fatalf("expected unique bot_id violation")
	}
	if _, err := db.ExecContext(ctx, insert, "c3", "bot-b", -1); err == nil {
		t.Fatalf("expected negative offset to be rejected")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_botpoll_update_cursors.down.sql"); err != nil {
		t.Fatalf("apply cursor migration down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"bot_update_cursors",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected bot_update_cursors to be dropped after down migration")
	}
}

func TestSQLiteRateLimitStateMigration_EnforcesBotMethodUniqueness(t *testing.T) {
	dsn := fmt.Sprintf("file:migrations-rate-limit-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(botpoll.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_botpoll_rate_limit_states.up.sql"); err != nil {
		t.Fatalf("apply rate-limit migration up: %v", err)
	}
	insert := `INSERT INTO bot_rate_limit_states (id, bot_id, method) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "r1", "bot-a", "sendMessage"); err != nil {
		t.Fatalf("insert state: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "r2", "bot-a", "getUpdates"); err != nil {
		t.Fatalf("insert second method: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "r3", "bot-a", "sendMessage"); err == nil {
		t.Fatalf("expected unique (bot_id, method) violation")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
