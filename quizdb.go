package quizrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents a quiz database connection
type DB struct {
	db *sql.DB
}

// DBQuestion represents a question bank row
type DBQuestion struct {
	ID          int64  `json:"id"`
	Bank        string `json:"bank"`
	QuestionNum int    `json:"question_num"`
	Text        string `json:"text"`
	Correct     string `json:"correct"`
	Wrong1      string `json:"wrong_1"`
	Wrong2      string `json:"wrong_2"`
	Wrong3      string `json:"wrong_3"`
}

// Record converts the row into a source record
func (q DBQuestion) Record() QuestionRecord {
	return QuestionRecord{
		Question: q.Text,
		Correct:  q.Correct,
		Wrong:    []string{q.Wrong1, q.Wrong2, q.Wrong3},
	}
}

// BankSummary describes one stored question bank
type BankSummary struct {
	Name         string `json:"name"`
	NumQuestions int    `json:"num_questions"`
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bank TEXT NOT NULL,
			question_num INTEGER NOT NULL,
			text TEXT NOT NULL,
			correct TEXT NOT NULL,
			wrong_1 TEXT NOT NULL,
			wrong_2 TEXT NOT NULL,
			wrong_3 TEXT NOT NULL,
			UNIQUE (bank, question_num)
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_sessions (
			handle TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			expires_at DATETIME
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// ReplaceBank stores records as the full content of bank, dropping what it held before
func (db *DB) ReplaceBank(ctx context.Context, bank string, records []QuestionRecord) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM questions WHERE bank = ?", bank); err != nil {
		return fmt.Errorf("failed to clear bank %s: %w", bank, err)
	}

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO questions (bank, question_num, text, correct, wrong_1, wrong_2, wrong_3) VALUES (?, ?, ?, ?, ?, ?, ?)",
			bank, i+1, rec.Question, rec.Correct, rec.Wrong[0], rec.Wrong[1], rec.Wrong[2],
		)
		if err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bank %s: %w", bank, err)
	}
	return nil
}

// GetQuestions retrieves all questions of a bank
func (db *DB) GetQuestions(ctx context.Context, bank string) ([]DBQuestion, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT id, bank, question_num, text, correct, wrong_1, wrong_2, wrong_3 FROM questions WHERE bank = ? ORDER BY question_num",
		bank,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []DBQuestion
	for rows.Next() {
		var q DBQuestion
		err := rows.Scan(&q.ID, &q.Bank, &q.QuestionNum, &q.Text, &q.Correct, &q.Wrong1, &q.Wrong2, &q.Wrong3)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

// GetBanks lists the stored banks with their sizes
func (db *DB) GetBanks(ctx context.Context) ([]BankSummary, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT bank, COUNT(*) FROM questions GROUP BY bank ORDER BY bank")
	if err != nil {
		return nil, fmt.Errorf("failed to get banks: %w", err)
	}
	defer rows.Close()

	var banks []BankSummary
	for rows.Next() {
		var b BankSummary
		if err := rows.Scan(&b.Name, &b.NumQuestions); err != nil {
			return nil, fmt.Errorf("failed to scan bank: %w", err)
		}
		banks = append(banks, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating banks: %w", err)
	}

	return banks, nil
}

// SQLiteStore keeps quiz sessions in the quiz_sessions table so they survive restarts
type SQLiteStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore creates a store on an opened database; ttl <= 0 disables expiry
func NewSQLiteStore(db *DB, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new session row
func (s *SQLiteStore) Create(ctx context.Context, handle string, quiz *Quiz) error {
	state, err := encodeQuiz(quiz)
	if err != nil {
		return err
	}

	// An expired row with the same handle is not a duplicate
	now := s.now()
	if _, err := s.db.db.ExecContext(ctx,
		"DELETE FROM quiz_sessions WHERE handle = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		handle, now,
	); err != nil {
		return fmt.Errorf("failed to purge expired session: %w", err)
	}

	res, err := s.db.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO quiz_sessions (handle, state, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		handle, state, now, now, s.deadline(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, handle)
	}
	return nil
}

// Get loads the quiz stored under handle
func (s *SQLiteStore) Get(ctx context.Context, handle string) (*Quiz, error) {
	var state string
	var expiresAt sql.NullTime
	err := s.db.db.QueryRowContext(ctx,
		"SELECT state, expires_at FROM quiz_sessions WHERE handle = ?",
		handle,
	).Scan(&state, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		if err := s.Remove(ctx, handle); err != nil {
			VerboseLog("Failed to drop expired session %s: %v", handle, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}

	return decodeQuiz(state)
}

// Save overwrites the stored state and extends its lifetime
func (s *SQLiteStore) Save(ctx context.Context, handle string, quiz *Quiz) error {
	state, err := encodeQuiz(quiz)
	if err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.db.ExecContext(ctx,
		"UPDATE quiz_sessions SET state = ?, updated_at = ?, expires_at = ? WHERE handle = ?",
		state, now, s.deadline(now), handle,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	return nil
}

// Remove deletes the session row; a missing row is not an error
func (s *SQLiteStore) Remove(ctx context.Context, handle string) error {
	if _, err := s.db.db.ExecContext(ctx, "DELETE FROM quiz_sessions WHERE handle = ?", handle); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) deadline(now time.Time) sql.NullTime {
	if s.ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: now.Add(s.ttl), Valid: true}
}
