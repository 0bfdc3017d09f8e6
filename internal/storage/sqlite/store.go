// Package sqlite persists feedback items, their scores and generated reports.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"feedbackbot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	text       TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT 'manual',
	sentiment  TEXT,
	theme      TEXT,
	summary    TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);

CREATE TABLE IF NOT EXISTS scores (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	feedback_id    INTEGER NOT NULL UNIQUE REFERENCES feedback(id) ON DELETE CASCADE,
	urgency        INTEGER NOT NULL CHECK (urgency BETWEEN 1 AND 10),
	impact         INTEGER NOT NULL CHECK (impact BETWEEN 1 AND 10),
	justification  TEXT NOT NULL DEFAULT '',
	priority_score REAL NOT NULL,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	generated_at DATETIME NOT NULL,
	content      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" is accepted for
// tests. Only one connection is kept so writers never contend for the lock.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) InsertFeedback(ctx context.Context, text, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (text, source, created_at) VALUES (?, ?, ?)`,
		text, source, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting feedback: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateClassification(ctx context.Context, id int64, c domain.Classification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET sentiment = ?, theme = ?, summary = ? WHERE id = ?`,
		string(c.Sentiment), string(c.Theme), c.Summary, id,
	)
	if err != nil {
		return fmt.Errorf("updating classification for feedback %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating classification for feedback %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("updating classification for feedback %d: no such feedback", id)
	}
	return nil
}

func (s *Store) InsertScore(ctx context.Context, id int64, score domain.Score) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scores (feedback_id, urgency, impact, justification, priority_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, score.Urgency, score.Impact, score.Justification, score.PriorityScore, s.now(),
	)
	if err != nil {
		return fmt.Errorf("inserting score for feedback %d: %w", id, err)
	}
	return nil
}

const recordColumns = `f.id, f.text, f.source, f.sentiment, f.theme, f.summary, f.created_at,
	s.urgency, s.impact, s.justification, s.priority_score`

// FetchAll returns every feedback item merged with its score, newest first.
func (s *Store) FetchAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+`
		 FROM feedback f LEFT JOIN scores s ON s.feedback_id = f.id
		 ORDER BY f.created_at DESC, f.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching feedback: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("fetching feedback: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) FetchByID(ctx context.Context, id int64) (domain.Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+`
		 FROM feedback f LEFT JOIN scores s ON s.feedback_id = f.id
		 WHERE f.id = ?`,
		id,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("fetching feedback %d: %w", id, err)
	}
	return rec, true, nil
}

// DeleteFeedback removes the item and its score. It reports whether the item
// existed.
func (s *Store) DeleteFeedback(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("deleting feedback %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE feedback_id = ?`, id); err != nil {
		return false, fmt.Errorf("deleting score for feedback %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting feedback %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting feedback %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("deleting feedback %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) InsertReport(ctx context.Context, content string) (domain.Report, error) {
	generatedAt := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (generated_at, content) VALUES (?, ?)`,
		generatedAt, content,
	)
	if err != nil {
		return domain.Report{}, fmt.Errorf("inserting report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Report{}, fmt.Errorf("inserting report: %w", err)
	}
	return domain.Report{ID: id, GeneratedAt: generatedAt, Content: content}, nil
}

func (s *Store) LatestReport(ctx context.Context) (domain.Report, bool, error) {
	var r domain.Report
	err := s.db.QueryRowContext(ctx,
		`SELECT id, generated_at, content FROM reports ORDER BY generated_at DESC, id DESC LIMIT 1`,
	).Scan(&r.ID, &r.GeneratedAt, &r.Content)
	if err == sql.ErrNoRows {
		return domain.Report{}, false, nil
	}
	if err != nil {
		return domain.Report{}, false, fmt.Errorf("fetching latest report: %w", err)
	}
	return r, true, nil
}

// AllReports returns every stored report, newest first.
func (s *Store) AllReports(ctx context.Context) ([]domain.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, content FROM reports ORDER BY generated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		var r domain.Report
		if err := rows.Scan(&r.ID, &r.GeneratedAt, &r.Content); err != nil {
			return nil, fmt.Errorf("fetching reports: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var (
		rec                       domain.Record
		sentiment, theme, summary sql.NullString
		urgency, impact           sql.NullInt64
		justification             sql.NullString
		priority                  sql.NullFloat64
	)
	err := row.Scan(
		&rec.ID, &rec.Text, &rec.Source, &sentiment, &theme, &summary, &rec.CreatedAt,
		&urgency, &impact, &justification, &priority,
	)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Sentiment = domain.Sentiment(sentiment.String)
	rec.Theme = domain.Theme(theme.String)
	rec.Summary = summary.String
	if urgency.Valid && impact.Valid {
		rec.Score = &domain.Score{
			Urgency:       int(urgency.Int64),
			Impact:        int(impact.Int64),
			Justification: justification.String,
			PriorityScore: priority.Float64,
		}
	}
	return rec, nil
}
