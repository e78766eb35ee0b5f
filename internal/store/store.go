// Package store persists reference cases, submitted scenarios with their
// results, and the audit trail in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/efebarandurmaz/riskmap/internal/corpus"
	"github.com/efebarandurmaz/riskmap/internal/observability"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

// ErrNotFound is returned when a scenario does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS reference_cases (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	issue           TEXT NOT NULL DEFAULT '',
	impact          TEXT NOT NULL DEFAULT '',
	recommendations TEXT NOT NULL DEFAULT '[]',
	risk_type       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS scenarios (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	risk_type   TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	result      TEXT
);
CREATE TABLE IF NOT EXISTS audit_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	scenario_id TEXT,
	step        TEXT,
	success     INTEGER NOT NULL,
	message     TEXT,
	details     TEXT
);`

// ReferenceCase is a curated historical case.
type ReferenceCase struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Issue           string   `json:"issue"`
	Impact          string   `json:"impact"`
	Recommendations []string `json:"recommendations"`
	RiskType        string   `json:"riskType"`
}

// Text is the normalized searchable text of the case. Empty fields leave no
// extra spaces.
func (c ReferenceCase) Text() string {
	return corpus.NormalizeText(strings.Join([]string{c.Name, c.Issue, c.Impact, c.RiskType}, " "))
}

// LoadReferenceFile reads a JSON array of reference cases.
func LoadReferenceFile(path string) ([]ReferenceCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var cases []ReferenceCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return cases, nil
}

// ScenarioSummary is one row of the recent scenarios listing.
type ScenarioSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RiskType  string    `json:"riskType"`
	CreatedAt time.Time `json:"createdAt"`
	HasResult bool      `json:"hasResult"`
}

// Store is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates dataDir if needed and opens <dataDir>/riskmap.db.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "riskmap.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrating schema: %w", err)
	}
	return &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SeedReferenceCases inserts cases that are not present yet and returns how
// many were added.
func (s *Store) SeedReferenceCases(ctx context.Context, cases []ReferenceCase) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, c := range cases {
		if strings.TrimSpace(c.ID) == "" {
			return 0, errors.New("store: reference case without id")
		}
		recs, err := json.Marshal(orEmpty(c.Recommendations))
		if err != nil {
			return 0, fmt.Errorf("store: encoding recommendations of %s: %w", c.ID, err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO reference_cases (id, name, issue, impact, recommendations, risk_type) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Issue, c.Impact, string(recs), c.RiskType)
		if err != nil {
			return 0, fmt.Errorf("store: seeding %s: %w", c.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return added, nil
}

// ReferenceCases returns the curated cases ordered by ID.
func (s *Store) ReferenceCases(ctx context.Context) ([]ReferenceCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, issue, impact, recommendations, risk_type FROM reference_cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: reference cases: %w", err)
	}
	defer rows.Close()
	out := []ReferenceCase{}
	for rows.Next() {
		var c ReferenceCase
		var recs string
		if err := rows.Scan(&c.ID, &c.Name, &c.Issue, &c.Impact, &recs, &c.RiskType); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(recs), &c.Recommendations); err != nil {
			c.Recommendations = []string{}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CuratedRecommendations returns the stored recommendations of the given
// reference cases keyed by case ID. Unknown IDs are absent from the map.
func (s *Store) CuratedRecommendations(ctx context.Context, ids []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, recommendations FROM reference_cases WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: curated recommendations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		var recs []string
		if err := json.Unmarshal([]byte(raw), &recs); err == nil && len(recs) > 0 {
			out[id] = recs
		}
	}
	return out, rows.Err()
}

// ReferenceDocuments returns the curated cases as matchable documents.
func (s *Store) ReferenceDocuments(ctx context.Context) ([]corpus.Document, error) {
	cases, err := s.ReferenceCases(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]corpus.Document, len(cases))
	for i, c := range cases {
		docs[i] = corpus.Document{ID: c.ID, Name: c.Name, Text: c.Text()}
	}
	return docs, nil
}

// UserScenarioDocuments returns submitted scenarios as matchable documents.
func (s *Store) UserScenarioDocuments(ctx context.Context) ([]corpus.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, risk_type FROM scenarios ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: scenarios: %w", err)
	}
	defer rows.Close()
	var docs []corpus.Document
	for rows.Next() {
		var id, name, desc, risk string
		if err := rows.Scan(&id, &name, &desc, &risk); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		docs = append(docs, corpus.Document{
			ID:   id,
			Name: name,
			Text: corpus.NormalizeText(name + " " + desc + " " + risk),
		})
	}
	return docs, rows.Err()
}

// SaveScenario records a submitted scenario. Saving an existing ID keeps the
// original row.
func (s *Store) SaveScenario(ctx context.Context, id string, in workflow.Input) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scenarios (id, name, description, risk_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, in.Name, in.Description, in.RiskType, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: saving scenario %s: %w", id, err)
	}
	return nil
}

// SaveResult attaches a workflow result to its scenario.
func (s *Store) SaveResult(ctx context.Context, res workflow.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("store: encoding result: %w", err)
	}
	out, err := s.db.ExecContext(ctx, `UPDATE scenarios SET result = ? WHERE id = ?`, string(b), res.ScenarioID)
	if err != nil {
		return fmt.Errorf("store: saving result %s: %w", res.ScenarioID, err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("store: scenario %s: %w", res.ScenarioID, ErrNotFound)
	}
	return nil
}

// GetResult returns the stored result. A scenario that exists without a
// result yet reports ok=false and no error.
func (s *Store) GetResult(ctx context.Context, id string) (res workflow.Result, ok bool, err error) {
	var raw sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT result FROM scenarios WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return res, false, ErrNotFound
	}
	if err != nil {
		return res, false, fmt.Errorf("store: loading result %s: %w", id, err)
	}
	if !raw.Valid {
		return res, false, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &res); err != nil {
		return res, false, fmt.Errorf("store: decoding result %s: %w", id, err)
	}
	return res, true, nil
}

// RecentScenarios lists the newest scenarios first.
func (s *Store) RecentScenarios(ctx context.Context, limit int) ([]ScenarioSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, risk_type, created_at, result IS NOT NULL FROM scenarios ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent scenarios: %w", err)
	}
	defer rows.Close()
	out := []ScenarioSummary{}
	for rows.Next() {
		var sum ScenarioSummary
		var created string
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.RiskType, &created, &sum.HasResult); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Log implements observability.Sink.
func (s *Store) Log(event *observability.Event) error {
	var details []byte
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("store: encoding audit details: %w", err)
		}
		details = b
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_log (ts, event_type, scenario_id, step, success, message, details) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339Nano), string(event.Type), event.ScenarioID, event.Step, event.Success, event.Message, string(details))
	if err != nil {
		return fmt.Errorf("store: audit: %w", err)
	}
	return nil
}

// AuditCount returns the number of audit rows for a scenario, or all rows
// when scenarioID is empty.
func (s *Store) AuditCount(ctx context.Context, scenarioID string) (int, error) {
	q, args := `SELECT COUNT(*) FROM audit_log`, []any{}
	if scenarioID != "" {
		q, args = q+` WHERE scenario_id = ?`, []any{scenarioID}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: audit count: %w", err)
	}
	return n, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ corpus.Source      = (*Store)(nil)
	_ observability.Sink = (*Store)(nil)
)
