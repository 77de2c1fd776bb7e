package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteSink stores entries of one run in an evidence table keyed by run id.
type SQLiteSink struct {
	DB    *sql.DB
	runID string
}

// NewSQLiteSink opens (or creates) the database at dbPath.
func NewSQLiteSink(dbPath, runID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening evidence db: %w", err)
	}

	query := `CREATE TABLE IF NOT EXISTS evidence (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		hash TEXT NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);`
	if _, err := db.Exec(query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating evidence table: %w", err)
	}

	return &SQLiteSink{DB: db, runID: runID}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	query := `INSERT INTO evidence (run_id, seq, type, worker_id, stage, hash, body) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.DB.ExecContext(ctx, query, s.runID, e.Seq, string(e.Type), e.WorkerID, e.Stage, e.Hash, string(body))
	return err
}

func (s *SQLiteSink) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT body FROM evidence WHERE run_id = ? ORDER BY seq ASC`, s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decoding evidence row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.DB.Close()
}
