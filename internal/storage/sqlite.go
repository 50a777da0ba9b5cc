package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"smalidiff/internal/diff"
	"smalidiff/internal/smali"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ ResultStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_key TEXT UNIQUE,
			old_source TEXT,
			new_source TEXT,
			created_at TEXT,
			matched INTEGER,
			changed INTEGER,
			added INTEGER,
			deleted INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			run_id INTEGER,
			seq INTEGER,
			status TEXT,
			old_class TEXT,
			new_class TEXT,
			nested INTEGER,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS changes (
			run_id INTEGER,
			entry_seq INTEGER,
			seq INTEGER,
			kind TEXT,
			subject TEXT,
			old_member TEXT,
			new_member TEXT,
			aspects JSON,
			PRIMARY KEY (run_id, entry_seq, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS mappings (
			run_id INTEGER,
			seq INTEGER,
			old_class TEXT,
			new_class TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_kind ON changes(kind);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveResult stores res in a single transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, info RunInfo, res *diff.Result) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	if info.Key == "" {
		info.Key = uuid.NewString()
	}
	sum := res.Summary()

	r, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_key, old_source, new_source, created_at, matched, changed, added, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, info.Key, info.OldSource, info.NewSource, info.CreatedAt.UTC().Format(time.RFC3339Nano),
		sum.MatchedClasses, sum.ChangedClasses, sum.AddedClasses, sum.DeletedClasses)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := r.LastInsertId()
	if err != nil {
		return 0, err
	}

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (run_id, seq, status, old_class, new_class, nested) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer entryStmt.Close()

	changeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changes (run_id, entry_seq, seq, kind, subject, old_member, new_member, aspects)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer changeStmt.Close()

	for i, e := range res.Entries {
		rec := toEntryRecord(e)
		if _, err := entryStmt.ExecContext(ctx, runID, i, rec.Status, rec.OldClass, rec.NewClass, rec.Nested); err != nil {
			return 0, fmt.Errorf("failed to insert entry: %w", err)
		}
		for j, c := range rec.Changes {
			aspects, err := json.Marshal(c.Aspects)
			if err != nil {
				return 0, err
			}
			if _, err := changeStmt.ExecContext(ctx, runID, i, j, string(c.Kind), c.Subject, c.OldMember, c.NewMember, aspects); err != nil {
				return 0, fmt.Errorf("failed to insert change: %w", err)
			}
		}
	}

	for i, m := range res.Mapping.Renames() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mappings (run_id, seq, old_class, new_class) VALUES (?, ?, ?, ?)
		`, runID, i, m[0], m[1]); err != nil {
			return 0, fmt.Errorf("failed to insert mapping: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func (s *SQLiteStore) LoadRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, run_key, old_source, new_source, created_at, matched, changed, added, deleted FROM runs WHERE id = ?", id)
	info, err := scanRunInfo(row)
	if err != nil {
		return nil, err
	}
	run := &Run{Info: info}

	rows, err := s.db.QueryContext(ctx, "SELECT status, old_class, new_class, nested FROM entries WHERE run_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EntryRecord
		if err := rows.Scan(&e.Status, &e.OldClass, &e.NewClass, &e.Nested); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		run.Entries = append(run.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	changeRows, err := s.db.QueryContext(ctx, "SELECT entry_seq, kind, subject, old_member, new_member, aspects FROM changes WHERE run_id = ? ORDER BY entry_seq, seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer changeRows.Close()

	for changeRows.Next() {
		var (
			seq     int
			kind    string
			c       ChangeRecord
			aspects []byte
		)
		if err := changeRows.Scan(&seq, &kind, &c.Subject, &c.OldMember, &c.NewMember, &aspects); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Kind = diff.ChangeKind(kind)
		if len(aspects) > 0 {
			_ = json.Unmarshal(aspects, &c.Aspects)
		}
		if seq < 0 || seq >= len(run.Entries) {
			return nil, fmt.Errorf("change references missing entry %d", seq)
		}
		run.Entries[seq].Changes = append(run.Entries[seq].Changes, c)
	}
	if err := changeRows.Err(); err != nil {
		return nil, err
	}

	mapRows, err := s.db.QueryContext(ctx, "SELECT old_class, new_class FROM mappings WHERE run_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer mapRows.Close()

	for mapRows.Next() {
		var m [2]string
		if err := mapRows.Scan(&m[0], &m[1]); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		run.Mappings = append(run.Mappings, m)
	}
	return run, mapRows.Err()
}

// LoadRunByKey resolves a run key to its id and loads the run.
func (s *SQLiteStore) LoadRunByKey(ctx context.Context, key string) (*Run, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM runs WHERE run_key = ?", key).Scan(&id); err != nil {
		return nil, fmt.Errorf("run %s: %w", key, err)
	}
	return s.LoadRun(ctx, id)
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, run_key, old_source, new_source, created_at, matched, changed, added, deleted FROM runs ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRunInfo(sc scanner) (RunInfo, error) {
	var (
		info    RunInfo
		created string
	)
	if err := sc.Scan(&info.ID, &info.Key, &info.OldSource, &info.NewSource, &created, &info.Matched, &info.Changed, &info.Added, &info.Deleted); err != nil {
		return RunInfo{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		info.CreatedAt = t
	}
	return info, nil
}

func toEntryRecord(e diff.Entry) EntryRecord {
	rec := EntryRecord{Nested: e.Nested}
	switch {
	case e.Added():
		rec.Status = "added"
	case e.Deleted():
		rec.Status = "deleted"
	default:
		rec.Status = "matched"
	}
	if e.Old != nil {
		rec.OldClass = e.Old.Name
	}
	if e.New != nil {
		rec.NewClass = e.New.Name
	}

	for _, c := range e.Changes {
		c = c.Refine()
		rec.Changes = append(rec.Changes, ChangeRecord{
			Kind:      c.Kind,
			Subject:   c.Subject(),
			OldMember: memberName(c.OldMethod, c.OldField, c.OldName),
			NewMember: memberName(c.NewMethod, c.NewField, c.NewName),
			Aspects:   c.Aspects,
		})
	}
	return rec
}

func memberName(m *smali.Method, f *smali.Field, name string) string {
	switch {
	case m != nil:
		return m.Signature()
	case f != nil:
		return f.Name + ":" + f.Type
	default:
		return name
	}
}
