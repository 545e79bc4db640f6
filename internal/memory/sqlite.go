package memory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS failed_to_create (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS failed_to_modify (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS created (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS asset_types (
	id TEXT PRIMARY KEY,
	aitype TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS latest (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	latest_created_date TEXT,
	latest_modified_date TEXT
);
`

// sqliteLedger is the "sqlite:" backing described in spec.md §6.5, built on
// the pure-Go github.com/ncruces/go-sqlite3 driver (no cgo).
type sqliteLedger struct {
	db              *sql.DB
	timestampFormat string
}

func openSQLite(dsn string, timestampFormat string) (Ledger, error) {
	path := strings.TrimPrefix(dsn, "sqlite:")
	tsFormat := timestampFormatOrDefault(timestampFormat)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("memory: opening sqlite ledger: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: creating schema: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM latest`).Scan(&count); err != nil {
		db.Close()
		return nil, err
	}
	if count == 0 {
		defaultDate := DefaultEpoch.Format(tsFormat)
		if _, err := db.Exec(
			`INSERT OR REPLACE INTO latest(id, latest_created_date, latest_modified_date) VALUES (0, ?, ?)`,
			defaultDate, defaultDate,
		); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &sqliteLedger{db: db, timestampFormat: tsFormat}, nil
}

func (l *sqliteLedger) latestDate(column string) time.Time {
	var raw string
	_ = l.db.QueryRow(fmt.Sprintf(`SELECT %s FROM latest WHERE id = 0`, column)).Scan(&raw)
	t, _ := time.Parse(l.timestampFormat, raw)
	return t
}

func (l *sqliteLedger) setLatestDate(column string, t time.Time) {
	_, _ = l.db.Exec(fmt.Sprintf(`UPDATE latest SET %s = ? WHERE id = 0`, column), t.Format(l.timestampFormat))
}

func (l *sqliteLedger) LatestCreated() time.Time       { return l.latestDate("latest_created_date") }
func (l *sqliteLedger) SetLatestCreated(t time.Time)   { l.setLatestDate("latest_created_date", t) }
func (l *sqliteLedger) LatestModified() time.Time      { return l.latestDate("latest_modified_date") }
func (l *sqliteLedger) SetLatestModified(t time.Time)  { l.setLatestDate("latest_modified_date", t) }

func (l *sqliteLedger) idsFromTable(table string) ([]string, error) {
	rows, err := l.db.Query(fmt.Sprintf(`SELECT id FROM %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *sqliteLedger) SuccessCreated() ([]string, error)  { return l.idsFromTable("created") }
func (l *sqliteLedger) FailedCreated() ([]string, error)   { return l.idsFromTable("failed_to_create") }
func (l *sqliteLedger) FailedModified() ([]string, error)  { return l.idsFromTable("failed_to_modify") }

func (l *sqliteLedger) AssetType(id string) (string, bool, error) {
	var aitype string
	err := l.db.QueryRow(`SELECT aitype FROM asset_types WHERE id = ?`, id).Scan(&aitype)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return aitype, true, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (l *sqliteLedger) updatePhase(failedTable string, success, failed []string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(success) > 0 {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, failedTable, placeholders(len(success)))
		if _, err := tx.Exec(query, toArgs(success)...); err != nil {
			return err
		}
	}
	succeeded := make(map[string]bool, len(success))
	for _, id := range success {
		succeeded[id] = true
	}
	for _, id := range failed {
		if succeeded[id] {
			continue
		}
		if _, err := tx.Exec(fmt.Sprintf(`INSERT OR REPLACE INTO %s(id) VALUES (?)`, failedTable), id); err != nil {
			return err
		}
	}
	for _, id := range success {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO created(id) VALUES (?)`, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (l *sqliteLedger) recordTypes(types map[string]string) error {
	if len(types) == 0 {
		return nil
	}
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for id, aitype := range types {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO asset_types(id, aitype) VALUES (?, ?)`, id, aitype); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (l *sqliteLedger) UpdateCreated(success, failed []string, types map[string]string) error {
	if err := l.updatePhase("failed_to_create", success, failed); err != nil {
		return err
	}
	return l.recordTypes(types)
}

func (l *sqliteLedger) UpdateModified(success, failed []string, types map[string]string) error {
	if err := l.updatePhase("failed_to_modify", success, failed); err != nil {
		return err
	}
	return l.recordTypes(types)
}

func (l *sqliteLedger) UpdateRemoved(removed []string) error {
	if len(removed) == 0 {
		return nil
	}
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range removed {
		for _, table := range []string{"created", "failed_to_create", "failed_to_modify", "asset_types"} {
			if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (l *sqliteLedger) Save() error  { return nil } // sqlite commits per-transaction; nothing to flush
func (l *sqliteLedger) Close() error { return l.db.Close() }
