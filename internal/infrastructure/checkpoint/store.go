// Package checkpoint provides SQLite persistence for training runs:
// parameter checkpoints on a fixed iteration cadence and per-iteration loss
// metrics.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// Store persists run checkpoints and metrics.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	config StoreConfig
	stats  *StoreStats
}

// StoreConfig configures the checkpoint store.
type StoreConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `json:"dbPath" yaml:"dbPath"`

	// MaxCheckpointsPerRun caps stored checkpoints per run; older ones are
	// pruned. Zero keeps everything.
	MaxCheckpointsPerRun int `json:"maxCheckpointsPerRun" yaml:"maxCheckpointsPerRun"`
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DBPath:               ":memory:",
		MaxCheckpointsPerRun: 100,
	}
}

// StoreStats contains store statistics.
type StoreStats struct {
	TotalCheckpoints int64 `json:"totalCheckpoints"`
	TotalMetricRows  int64 `json:"totalMetricRows"`
	PrunedCount      int64 `json:"prunedCount"`
}

// Checkpoint is one stored parameter snapshot.
type Checkpoint struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	Task       int       `json:"task"`
	Iteration  int       `json:"iteration"`
	Parameters []float64 `json:"parameters"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MetricRow is one stored loss component.
type MetricRow struct {
	RunID     string  `json:"runId"`
	Task      int     `json:"task"`
	Iteration int     `json:"iteration"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
}

// NewStore opens the database and initializes the schema.
func NewStore(config StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		config: config,
		stats:  &StoreStats{},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		task INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		parameters TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, task, iteration);

	CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL,
		task INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_run ON metrics(run_id, task, iteration);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RegisterRun records a run and its configuration, returning the run ID.
func (s *Store) RegisterRun(cfg domainTraining.Config) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(
		`INSERT INTO runs (id, config, created_at) VALUES (?, ?, ?)`,
		id, string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to register run: %w", err)
	}
	return id, nil
}

// SaveCheckpoint stores one parameter snapshot.
func (s *Store) SaveCheckpoint(runID string, task, iteration int, parameters []float64) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	cp := &Checkpoint{
		ID:         uuid.New().String(),
		RunID:      runID,
		Task:       task,
		Iteration:  iteration,
		Parameters: parameters,
		CreatedAt:  time.Now(),
	}

	_, err = s.db.Exec(
		`INSERT INTO checkpoints (id, run_id, task, iteration, parameters, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.RunID, cp.Task, cp.Iteration, string(data), cp.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	s.stats.TotalCheckpoints++

	if s.config.MaxCheckpointsPerRun > 0 {
		if err := s.pruneLocked(runID); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

func (s *Store) pruneLocked(runID string) error {
	res, err := s.db.Exec(`
		DELETE FROM checkpoints WHERE run_id = ? AND id NOT IN (
			SELECT id FROM checkpoints WHERE run_id = ?
			ORDER BY task DESC, iteration DESC LIMIT ?
		)`, runID, runID, s.config.MaxCheckpointsPerRun)
	if err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.stats.PrunedCount += n
	}
	return nil
}

// ListCheckpoints returns the checkpoints of a run in storage order.
func (s *Store) ListCheckpoints(runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, task, iteration, parameters, created_at
		 FROM checkpoints WHERE run_id = ? ORDER BY task, iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var params string
		var created int64
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.Task, &cp.Iteration, &params, &created); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &cp.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode parameters: %w", err)
		}
		cp.CreatedAt = time.Unix(0, created)
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// RecordMetrics stores one iteration's loss components.
func (s *Store) RecordMetrics(runID string, task, iteration int, losses domainTraining.LossReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin metrics transaction: %w", err)
	}
	for name, value := range losses {
		if _, err := tx.Exec(
			`INSERT INTO metrics (run_id, task, iteration, name, value) VALUES (?, ?, ?, ?, ?)`,
			runID, task, iteration, name, value,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record metric %q: %w", name, err)
		}
		s.stats.TotalMetricRows++
	}
	return tx.Commit()
}

// Metrics returns the stored metrics of a run in iteration order.
func (s *Store) Metrics(runID string) ([]MetricRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT run_id, task, iteration, name, value
		 FROM metrics WHERE run_id = ? ORDER BY task, iteration, name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var m MetricRow
		if err := rows.Scan(&m.RunID, &m.Task, &m.Iteration, &m.Name, &m.Value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRuns returns all registered run IDs, newest first.
func (s *Store) ListRuns() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetStats returns store statistics.
func (s *Store) GetStats() *StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
