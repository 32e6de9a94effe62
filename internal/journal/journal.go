// Package journal implements the optional audit journal (A5): a
// best-effort, non-authoritative append-only record of coordinator
// events, persisted via jmoiron/sqlx over either mattn/go-sqlite3
// (default) or jackc/pgx/v5's stdlib driver. Coordinator state in
// internal/work/internal/agent/internal/target remains the source of
// truth; the journal exists for after-the-fact inspection and never
// gates a core operation. Grounded in the teacher's
// internal/editors/store/sqlite.go schema-on-open pattern.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver, registered as "pgx"
	_ "github.com/mattn/go-sqlite3"    // sqlite driver, registered as "sqlite3"
	"go.uber.org/zap"

	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
)

// Journal appends one row per observed event. It subscribes to the
// Event Bus as an ordinary listener: if the Bus recovers a panic from
// it, delivery to other listeners is unaffected (spec.md §7).
type Journal struct {
	db             *sqlx.DB
	projectID      string
	log            *logger.Logger
	unsubscribeBus events.Unsubscribe
}

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	occurred_at TIMESTAMP NOT NULL,
	data        TEXT NOT NULL
);
`

// postgresSchema differs only in its autoincrement syntax.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id          BIGSERIAL PRIMARY KEY,
	project_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	data        TEXT NOT NULL
);
`

// Open connects to the configured journal database and ensures the
// schema exists.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	driverName := "sqlite3"
	ddl := schema
	if driver == "postgres" {
		driverName = "pgx"
		ddl = postgresSchema
	}

	db, err := sqlx.Connect(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return db, nil
}

// New wires a Journal to projectID's Event Bus. It subscribes
// immediately; call Close to detach from the bus. The database handle
// stays owned by the caller, and Close does not close it.
func New(db *sqlx.DB, projectID string, bus *events.Bus, log *logger.Logger) *Journal {
	j := &Journal{
		db:        db,
		projectID: projectID,
		log:       log.WithFields(zap.String("component", "journal"), zap.String("project_id", projectID)),
	}
	j.unsubscribeBus = bus.Subscribe(j.record)
	return j
}

func (j *Journal) record(e *events.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		j.log.Error("failed to marshal journal entry", zap.Error(err))
		return
	}

	query := j.db.Rebind(`INSERT INTO journal_entries (project_id, kind, occurred_at, data) VALUES (?, ?, ?, ?)`)
	_, err = j.db.Exec(query, j.projectID, string(e.Type), e.Timestamp, string(data))
	if err != nil {
		j.log.Warn("failed to append journal entry", zap.Error(err))
	}
}

// Entry is one row read back from the journal.
type Entry struct {
	ID         int64     `db:"id"`
	ProjectID  string    `db:"project_id"`
	Kind       string    `db:"kind"`
	OccurredAt time.Time `db:"occurred_at"`
	Data       string    `db:"data"`
}

// Recent returns the most recent limit entries for the project, newest
// first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	query := j.db.Rebind(`SELECT id, project_id, kind, occurred_at, data FROM journal_entries
		 WHERE project_id = ? ORDER BY id DESC LIMIT ?`)
	err := j.db.SelectContext(ctx, &entries, query, j.projectID, limit)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	return entries, nil
}

// Close detaches from the Event Bus. It does not close the shared
// database handle.
func (j *Journal) Close() {
	if j.unsubscribeBus != nil {
		j.unsubscribeBus()
	}
}
