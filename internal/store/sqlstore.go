package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and installs the schema.
// Creates the parent directory (e.g. .visor) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schemaDDL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d (want %d)", v, schemaVersion)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a run row for a case.
func (s *SqlStore) CreateRun(run *Run) (int64, error) {
	if run == nil {
		return 0, errors.New("run is nil")
	}
	createdAt := run.CreatedAt
	if createdAt == "" {
		createdAt = nowUTC()
	}
	status := run.Status
	if status == "" {
		status = "running"
	}
	res, err := s.db.Exec(
		`INSERT INTO runs(case_name, prompt, target, status, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		run.Case, run.Prompt, run.Target, status, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// GetRun returns the run by id, or nil when absent.
func (s *SqlStore) GetRun(runID int64) (*Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT id, case_name, prompt, target, status, created_at, finished_at
		 FROM runs WHERE id = ?`, runID))
}

// GetRunByCase returns the run for a case name, or nil when absent.
func (s *SqlStore) GetRunByCase(caseName string) (*Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT id, case_name, prompt, target, status, created_at, finished_at
		 FROM runs WHERE case_name = ?`, caseName))
}

func (s *SqlStore) scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &r.Case, &r.Prompt, &r.Target, &r.Status, &r.CreatedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.FinishedAt = nullStr(finishedAt)
	return &r, nil
}

// ListRuns returns every run, newest first.
func (s *SqlStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, case_name, prompt, target, status, created_at, finished_at
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var list []*Run
	for rows.Next() {
		var r Run
		var finishedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Case, &r.Prompt, &r.Target, &r.Status, &r.CreatedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FinishedAt = nullStr(finishedAt)
		list = append(list, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return list, nil
}

// FinishRun marks a run terminal with the given status.
func (s *SqlStore) FinishRun(runID int64, status string) error {
	_, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, nowUTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// AddIteration inserts one iteration row. Scores are stored as JSON.
func (s *SqlStore) AddIteration(it *Iteration) (int64, error) {
	if it == nil {
		return 0, errors.New("iteration is nil")
	}
	scores := it.Scores
	if scores == nil {
		scores = map[string]float64{}
	}
	payload, err := json.Marshal(scores)
	if err != nil {
		return 0, fmt.Errorf("marshal scores: %w", err)
	}
	createdAt := it.CreatedAt
	if createdAt == "" {
		createdAt = nowUTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO iterations(run_id, n, overall, scores, outcome, action, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		it.RunID, it.N, it.Overall, string(payload), it.Outcome, it.Action, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert iteration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ListIterations returns a run's iterations in loop order.
func (s *SqlStore) ListIterations(runID int64) ([]*Iteration, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, n, overall, scores, outcome, action, created_at
		 FROM iterations WHERE run_id = ? ORDER BY n`, runID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()
	var list []*Iteration
	for rows.Next() {
		it, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	return list, nil
}

// LatestIteration returns the run's newest iteration, or nil when the
// run has none.
func (s *SqlStore) LatestIteration(runID int64) (*Iteration, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, n, overall, scores, outcome, action, created_at
		 FROM iterations WHERE run_id = ? ORDER BY n DESC LIMIT 1`, runID)
	if err != nil {
		return nil, fmt.Errorf("latest iteration: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanIteration(rows)
}

func scanIteration(rows *sql.Rows) (*Iteration, error) {
	var it Iteration
	var scores string
	var action sql.NullString
	if err := rows.Scan(&it.ID, &it.RunID, &it.N, &it.Overall, &scores, &it.Outcome, &action, &it.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan iteration: %w", err)
	}
	it.Action = nullStr(action)
	if err := json.Unmarshal([]byte(scores), &it.Scores); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}
	return &it, nil
}

// AddDefects inserts an iteration's defects in one transaction.
func (s *SqlStore) AddDefects(iterationID int64, defects []*Defect) error {
	if len(defects) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin defects tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, d := range defects {
		if d == nil {
			continue
		}
		if _, err := tx.Exec(
			`INSERT INTO defects(iteration_id, pass, source, type, severity, description, fix_target, fix_hint)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			iterationID, d.Pass, d.Source, d.Type, d.Severity, d.Description, d.FixTarget, d.FixHint,
		); err != nil {
			return fmt.Errorf("insert defect: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit defects tx: %w", err)
	}
	return nil
}

// ListDefects returns an iteration's defects in insertion order.
func (s *SqlStore) ListDefects(iterationID int64) ([]*Defect, error) {
	rows, err := s.db.Query(
		`SELECT id, iteration_id, pass, source, type, severity, description, fix_target, fix_hint
		 FROM defects WHERE iteration_id = ? ORDER BY id`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("list defects: %w", err)
	}
	defer rows.Close()
	var list []*Defect
	for rows.Next() {
		var d Defect
		var fixTarget, fixHint sql.NullString
		if err := rows.Scan(&d.ID, &d.IterationID, &d.Pass, &d.Source, &d.Type, &d.Severity, &d.Description, &fixTarget, &fixHint); err != nil {
			return nil, fmt.Errorf("scan defect: %w", err)
		}
		d.FixTarget = nullStr(fixTarget)
		d.FixHint = nullStr(fixHint)
		list = append(list, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list defects: %w", err)
	}
	return list, nil
}

// AddGuardrail inserts one guardrail row.
func (s *SqlStore) AddGuardrail(g *Guardrail) (int64, error) {
	if g == nil {
		return 0, errors.New("guardrail is nil")
	}
	createdAt := g.CreatedAt
	if createdAt == "" {
		createdAt = nowUTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO guardrails(run_id, trigger_text, instruction, iteration, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		g.RunID, g.Trigger, g.Instruction, g.Iteration, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert guardrail: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ListGuardrails returns a run's guardrails in the order they were
// added.
func (s *SqlStore) ListGuardrails(runID int64) ([]*Guardrail, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, trigger_text, instruction, iteration, created_at
		 FROM guardrails WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list guardrails: %w", err)
	}
	defer rows.Close()
	var list []*Guardrail
	for rows.Next() {
		var g Guardrail
		if err := rows.Scan(&g.ID, &g.RunID, &g.Trigger, &g.Instruction, &g.Iteration, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan guardrail: %w", err)
		}
		list = append(list, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list guardrails: %w", err)
	}
	return list, nil
}
