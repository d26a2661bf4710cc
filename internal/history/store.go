// Package history provides the suggestion audit log
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sonemaro/tella/internal/types"
)

// Store manages the history database
type Store struct {
	db *sql.DB
}

// Stats summarizes the history
type Stats struct {
	Total     int
	Executed  int
	Failed    int
	ByOutcome map[types.Outcome]int
	ByRisk    map[types.RiskLevel]int
	ByModel   map[string]int
}

const columns = `id, timestamp, query, command, model_risk, effective_risk, outcome,
	exit_code, duration_ms, working_dir, provider, model, error`

// NewStore opens (creating if needed) the history database at dbPath
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		query TEXT NOT NULL,
		command TEXT NOT NULL DEFAULT '',
		model_risk TEXT NOT NULL DEFAULT '',
		effective_risk TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		working_dir TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_suggestions_timestamp ON suggestions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_suggestions_outcome ON suggestions(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Add records an entry, assigning an ID and timestamp when missing
func (s *Store) Add(entry *types.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := s.db.Exec(`INSERT INTO suggestions (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC(),
		entry.Query,
		entry.Command,
		entry.ModelRisk.String(),
		entry.EffectiveRisk.String(),
		string(entry.Outcome),
		entry.ExitCode,
		entry.DurationMs,
		entry.WorkingDir,
		entry.Provider,
		entry.Model,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID
func (s *Store) Get(id string) (*types.HistoryEntry, error) {
	row := s.db.QueryRow(`SELECT `+columns+` FROM suggestions WHERE id = ?`, id)
	return scanEntry(row)
}

// List returns the most recent entries, newest first. An empty outcome
// lists every entry.
func (s *Store) List(limit, offset int, outcome types.Outcome) ([]*types.HistoryEntry, error) {
	query := `SELECT ` + columns + ` FROM suggestions`

	var args []any
	if outcome != "" {
		query += " WHERE outcome = ?"
		args = append(args, string(outcome))
	}

	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.query(query, args...)
}

// Search finds entries whose query or command contains text
func (s *Store) Search(text string, limit int) ([]*types.HistoryEntry, error) {
	like := "%" + text + "%"
	return s.query(`SELECT `+columns+` FROM suggestions
		WHERE query LIKE ? OR command LIKE ?
		ORDER BY timestamp DESC LIMIT ?`, like, like, limit)
}

func (s *Store) query(query string, args ...any) ([]*types.HistoryEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*types.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*types.HistoryEntry, error) {
	entry := &types.HistoryEntry{}
	var modelRisk, effectiveRisk, outcome string
	err := row.Scan(
		&entry.ID,
		&entry.Timestamp,
		&entry.Query,
		&entry.Command,
		&modelRisk,
		&effectiveRisk,
		&outcome,
		&entry.ExitCode,
		&entry.DurationMs,
		&entry.WorkingDir,
		&entry.Provider,
		&entry.Model,
		&entry.Error,
	)
	if err != nil {
		return nil, err
	}

	entry.ModelRisk, _ = types.ParseRiskLevel(modelRisk)
	entry.EffectiveRisk, _ = types.ParseRiskLevel(effectiveRisk)
	entry.Outcome = types.Outcome(outcome)
	return entry, nil
}

// Stats returns aggregate counts over the whole history
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{
		ByOutcome: make(map[types.Outcome]int),
		ByRisk:    make(map[types.RiskLevel]int),
		ByModel:   make(map[string]int),
	}

	err := s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = ? AND exit_code != 0 THEN 1 ELSE 0 END), 0)
		FROM suggestions`, string(types.OutcomeExecuted), string(types.OutcomeExecuted)).
		Scan(&stats.Total, &stats.Executed, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	if err := s.groupCount("outcome", func(k string, n int) { stats.ByOutcome[types.Outcome(k)] = n }); err != nil {
		return nil, err
	}
	if err := s.groupCount("effective_risk", func(k string, n int) {
		if level, ok := types.ParseRiskLevel(k); ok {
			stats.ByRisk[level] += n
		}
	}); err != nil {
		return nil, err
	}
	if err := s.groupCount("provider || '/' || model", func(k string, n int) {
		if k != "/" {
			stats.ByModel[k] = n
		}
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

// groupCount runs a GROUP BY over expr; expr is always a fixed column
// expression, never user input.
func (s *Store) groupCount(expr string, fn func(key string, count int)) error {
	rows, err := s.db.Query(`SELECT ` + expr + `, COUNT(*) FROM suggestions GROUP BY 1`)
	if err != nil {
		return fmt.Errorf("failed to aggregate history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		fn(key, count)
	}
	return rows.Err()
}

// Cleanup removes entries older than retentionDays and reports how many
// were deleted. A non-positive retention keeps everything.
func (s *Store) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC()
	res, err := s.db.Exec("DELETE FROM suggestions WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
