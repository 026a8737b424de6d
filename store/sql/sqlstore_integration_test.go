package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	botmigrations "github.com/goliatone/go-botpoll/migrations"
	"github.com/goliatone/go-botpoll/ratelimit"
	sqlstore "github.com/goliatone/go-botpoll/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-botpoll-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"bot_update_cursors", "bot_rate_limit_states"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCursorStore_SaveIsMonotonic(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CursorStore()
	if store == nil {
		t.Fatalf("expected cursor store from factory")
	}

	if _, found, err := store.LoadCursor(ctx, "bot-a"); err != nil || found {
		t.Fatalf("expected no cursor yet, found=%v err=%v", found, err)
	}

	if err := store.SaveCursor(ctx, "bot-a", 10); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	if err := store.SaveCursor(ctx, "bot-a", 7); err != nil {
		t.Fatalf("save stale cursor: %v", err)
	}
	offset, found, err := store.LoadCursor(ctx, "bot-a")
	if err != nil || !found {
		t.Fatalf("load cursor: found=%v err=%v", found, err)
	}
	if offset != 10 {
		t.Fatalf("expected cursor to stay at 10, got %d", offset)
	}

	if err := store.SaveCursor(ctx, "bot-a", 12); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	if offset, _, _ := store.LoadCursor(ctx, "bot-a"); offset != 12 {
		t.Fatalf("expected cursor 12, got %d", offset)
	}

	if err := store.ResetCursor(ctx, "bot-a", 3); err != nil {
		t.Fatalf("reset cursor: %v", err)
	}
	if offset, _, _ := store.LoadCursor(ctx, "bot-a"); offset != 3 {
		t.Fatalf("expected reset cursor 3, got %d", offset)
	}
}

func TestCursorStore_IsolatesBotsAndLists(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CursorStore()
	if err := store.SaveCursor(ctx, "bot-b", 5); err != nil {
		t.Fatalf("save bot-b: %v", err)
	}
	if err := store.SaveCursor(ctx, "bot-a", 9); err != nil {
		t.Fatalf("save bot-a: %v", err)
	}

	cursors, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 2 || cursors[0].BotID != "bot-a" || cursors[1].Offset != 5 {
		t.Fatalf("unexpected cursor listing: %+v", cursors)
	}
}

func TestCursorStore_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCursorStore(client.DB())
	if err != nil {
		t.Fatalf("new cursor store: %v", err)
	}
	if err := store.SaveCursor(ctx, " ", 1); err == nil {
		t.Fatalf("expected bot id validation error")
	}
	if err := store.SaveCursor(ctx, "bot-a", -1); err == nil {
		t.Fatalf("expected negative offset validation error")
	}
	if _, err := sqlstore.NewCursorStore(nil); err == nil {
		t.Fatalf("expected nil db error")
	}
}

func TestCursorStore_ConcurrentSavesKeepMaximum(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCursorStore(client.DB())
	if err != nil {
		t.Fatalf("new cursor store: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(offset int64) {
			defer wg.Done()
			errs <- store.SaveCursor(ctx, "bot-a", offset)
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent save: %v", err)
		}
	}
	if offset, _, _ := store.LoadCursor(ctx, "bot-a"); offset != 20 {
		t.Fatalf("expected max cursor 20, got %d", offset)
	}
}

func TestRateLimitStateStore_BacksTracker(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := ratelimit.NewTracker("bot-a", factory.RateLimitStateStore())
	tracker.Now = func() time.Time { return now }

	if err := tracker.Throttled(ctx, "sendMessage", 7*time.Second); err != nil {
		t.Fatalf("record throttle: %v", err)
	}
	if err := tracker.BeforeCall(ctx, "sendMessage"); err == nil {
		t.Fatalf("expected throttled error inside advised wait")
	}

	states, err := tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected one persisted state, got %d", len(states))
	}
	state := states[0]
	if state.RetryAfter != 7*time.Second || state.Throttles != 1 {
		t.Fatalf("unexpected persisted state: %+v", state)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(now.Add(7*time.Second)) {
		t.Fatalf("expected throttled until %s, got %v", now.Add(7*time.Second), state.ThrottledUntil)
	}

	if err := tracker.Recovered(ctx, "sendMessage"); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if err := tracker.BeforeCall(ctx, "sendMessage"); err != nil {
		t.Fatalf("expected no throttle after recovery, got %v", err)
	}
	recovered, err := factory.RateLimitStateStore().Get(ctx, ratelimit.Key{BotID: "bot-a", Method: "sendMessage"})
	if err != nil {
		t.Fatalf("get recovered state: %v", err)
	}
	if recovered.ThrottledUntil != nil || recovered.Throttles != 1 {
		t.Fatalf("expected cleared window with history kept, got %+v", recovered)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:botpoll-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = botmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != botmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, botmigrations.WithValidationTargets(botmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
