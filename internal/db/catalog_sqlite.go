package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/simulacroapp/simulacro/internal/models"
)

//go:embed seed/*.json
var embeddedScenarios embed.FS

// SQLiteCatalog serves the read-only scenario library. Scenarios are
// authored offline; the engine only ever reads them.
type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(db *sql.DB) (*SQLiteCatalog, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteCatalog{db: db}, nil
}

// ReadScenario returns the full scenario, answer keys included, or nil when
// the id is unknown.
func (c *SQLiteCatalog) ReadScenario(ctx context.Context, id string) (*models.Scenario, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, category, type, title, description, facilitator_notes, rounds
		 FROM scenarios WHERE id = ?`, id)
	var sc models.Scenario
	var rounds string
	if err := row.Scan(&sc.ID, &sc.Category, &sc.Type, &sc.Title, &sc.Description, &sc.FacilitatorNotes, &rounds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scenario %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rounds), &sc.Rounds); err != nil {
		return nil, fmt.Errorf("decode rounds of scenario %s: %w", id, err)
	}
	return &sc, nil
}

// ListScenarios returns the catalog summaries for session creation pickers.
func (c *SQLiteCatalog) ListScenarios(ctx context.Context) ([]models.ScenarioRef, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, category, type, title, description FROM scenarios ORDER BY category, title`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()
	out := []models.ScenarioRef{}
	for rows.Next() {
		var ref models.ScenarioRef
		if err := rows.Scan(&ref.ID, &ref.Category, &ref.Type, &ref.Title, &ref.Description); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// SeedScenarios loads the embedded scenario files into an empty catalog and
// reports how many were inserted. Existing rows win.
func SeedScenarios(db *sql.DB) (int, error) {
	entries, err := embeddedScenarios.ReadDir("seed")
	if err != nil {
		return 0, fmt.Errorf("read embedded scenarios: %w", err)
	}
	inserted := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := embeddedScenarios.ReadFile(filepath.Join("seed", entry.Name()))
		if err != nil {
			return inserted, fmt.Errorf("read embedded scenario %s: %w", entry.Name(), err)
		}
		var sc models.Scenario
		if err := json.Unmarshal(data, &sc); err != nil {
			return inserted, fmt.Errorf("decode scenario %s: %w", entry.Name(), err)
		}
		rounds, err := json.Marshal(sc.Rounds)
		if err != nil {
			return inserted, err
		}
		res, err := db.Exec(
			`INSERT OR IGNORE INTO scenarios (id, category, type, title, description, facilitator_notes, rounds)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sc.ID, sc.Category, sc.Type, sc.Title, sc.Description, sc.FacilitatorNotes, string(rounds))
		if err != nil {
			return inserted, fmt.Errorf("seed scenario %s: %w", sc.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
