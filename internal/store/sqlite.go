package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/npc-town/server/internal/world"
)

// SQLite implements world.Store on a SQLite database and publishes change
// notifications for every write.
type SQLite struct {
	conn     *sqlx.DB
	notifier *notifier
}

// Open opens or creates the database at the given path and runs migrations.
func Open(path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLite{conn: conn, notifier: newNotifier()}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seed(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Subscribe registers a change notification subscriber.
func (s *SQLite) Subscribe() (<-chan Change, func()) {
	return s.notifier.Subscribe()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS world_state (
		id TEXT PRIMARY KEY,
		time_of_day INTEGER NOT NULL,
		day_count INTEGER NOT NULL,
		weather TEXT NOT NULL,
		global_events_json TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		personality_json TEXT NOT NULL DEFAULT '{}',
		stats_json TEXT NOT NULL DEFAULT '{}',
		memory_json TEXT NOT NULL DEFAULT '[]',
		relationships_json TEXT NOT NULL DEFAULT '{}',
		current_action TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		width INTEGER NOT NULL DEFAULT 1,
		height INTEGER NOT NULL DEFAULT 1,
		symbol TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		npc_id TEXT,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		location_json TEXT,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS admin_controls (
		setting_name TEXT PRIMARY KEY,
		setting_value INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_npc_id ON events(npc_id);
	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// seed inserts the singleton world state, the reset flag row, the baseline
// citizens, and the static town locations when the tables are empty.
func (s *SQLite) seed() error {
	var count int
	if err := s.conn.Get(&count, "SELECT COUNT(*) FROM world_state"); err != nil {
		return err
	}
	if count == 0 {
		_, err := s.conn.Exec(`
			INSERT INTO world_state (id, time_of_day, day_count, weather)
			VALUES (?, 8, 1, 'clear')
		`, uuid.New().String())
		if err != nil {
			return err
		}
	}

	_, err := s.conn.Exec(`
		INSERT OR IGNORE INTO admin_controls (setting_name, setting_value)
		VALUES ('reset_game', 0)
	`)
	if err != nil {
		return err
	}

	if err := s.conn.Get(&count, "SELECT COUNT(*) FROM agents"); err != nil {
		return err
	}
	if count == 0 {
		ctx := context.Background()
		for _, a := range world.BaselineAgents() {
			a.Memory = []world.MemoryEntry{}
			a.Relationships = map[string]world.Relationship{}
			if err := s.InsertAgent(ctx, a); err != nil {
				return err
			}
		}
	}

	if err := s.conn.Get(&count, "SELECT COUNT(*) FROM locations"); err != nil {
		return err
	}
	if count == 0 {
		defaults := []world.Location{
			{Name: "Market", Type: "commerce", X: 8, Y: 4, Width: 3, Height: 2, Symbol: "M"},
			{Name: "Farm", Type: "food", X: 2, Y: 14, Width: 4, Height: 3, Symbol: "F"},
			{Name: "Inn", Type: "rest", X: 14, Y: 8, Width: 3, Height: 3, Symbol: "I"},
			{Name: "Library", Type: "culture", X: 6, Y: 10, Width: 2, Height: 2, Symbol: "L"},
			{Name: "Well", Type: "utility", X: 10, Y: 10, Width: 1, Height: 1, Symbol: "W"},
		}
		for _, loc := range defaults {
			_, err := s.conn.Exec(`
				INSERT INTO locations (id, name, type, x, y, width, height, symbol)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, uuid.New().String(), loc.Name, loc.Type, loc.X, loc.Y, loc.Width, loc.Height, loc.Symbol)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// --- world state ---

type worldStateRow struct {
	ID               string `db:"id"`
	TimeOfDay        int    `db:"time_of_day"`
	DayCount         int    `db:"day_count"`
	Weather          string `db:"weather"`
	GlobalEventsJSON string `db:"global_events_json"`
}

// WorldState returns the singleton world record.
func (s *SQLite) WorldState(ctx context.Context) (world.WorldState, error) {
	var row worldStateRow
	err := s.conn.GetContext(ctx, &row, `
		SELECT id, time_of_day, day_count, weather, global_events_json
		FROM world_state LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return world.WorldState{}, world.ErrNotFound
	}
	if err != nil {
		return world.WorldState{}, err
	}

	ws := world.WorldState{
		ID:        row.ID,
		TimeOfDay: row.TimeOfDay,
		DayCount:  row.DayCount,
		Weather:   row.Weather,
	}
	if err := json.Unmarshal([]byte(row.GlobalEventsJSON), &ws.GlobalEvents); err != nil {
		ws.GlobalEvents = []string{}
	}
	return ws, nil
}

// UpdateWorldState writes the singleton world record.
func (s *SQLite) UpdateWorldState(ctx context.Context, ws world.WorldState) error {
	globalJSON, err := json.Marshal(ws.GlobalEvents)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE world_state
		SET time_of_day = ?, day_count = ?, weather = ?, global_events_json = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, ws.TimeOfDay, ws.DayCount, ws.Weather, string(globalJSON), ws.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return world.ErrNotFound
	}
	s.notifier.publish(Change{Table: "world_state", Op: "update", ID: ws.ID})
	return nil
}

// --- agents ---

type agentRow struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	X                 int            `db:"x"`
	Y                 int            `db:"y"`
	Symbol            string         `db:"symbol"`
	PersonalityJSON   string         `db:"personality_json"`
	StatsJSON         string         `db:"stats_json"`
	MemoryJSON        string         `db:"memory_json"`
	RelationshipsJSON string         `db:"relationships_json"`
	CurrentAction     sql.NullString `db:"current_action"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// toAgent decodes the JSON payload columns, coercing malformed payloads to
// safe defaults so they never reach the transition engine.
func (r agentRow) toAgent() world.Agent {
	a := world.Agent{
		ID:        r.ID,
		Name:      r.Name,
		X:         r.X,
		Y:         r.Y,
		Symbol:    r.Symbol,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.CurrentAction.Valid {
		a.CurrentAction = r.CurrentAction.String
	}
	json.Unmarshal([]byte(r.PersonalityJSON), &a.Personality)
	json.Unmarshal([]byte(r.StatsJSON), &a.Needs)
	json.Unmarshal([]byte(r.MemoryJSON), &a.Memory)
	json.Unmarshal([]byte(r.RelationshipsJSON), &a.Relationships)
	world.CoerceAgent(&a)
	return a
}

func agentArgs(a world.Agent) (personality, stats, memory, relationships string, err error) {
	p, err := json.Marshal(a.Personality)
	if err != nil {
		return "", "", "", "", err
	}
	st, err := json.Marshal(a.Needs)
	if err != nil {
		return "", "", "", "", err
	}
	m, err := json.Marshal(a.Memory)
	if err != nil {
		return "", "", "", "", err
	}
	r, err := json.Marshal(a.Relationships)
	if err != nil {
		return "", "", "", "", err
	}
	return string(p), string(st), string(m), string(r), nil
}

// ListAgents returns every agent.
func (s *SQLite) ListAgents(ctx context.Context) ([]world.Agent, error) {
	var rows []agentRow
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT id, name, x, y, symbol, personality_json, stats_json, memory_json,
		       relationships_json, current_action, created_at, updated_at
		FROM agents ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	agents := make([]world.Agent, len(rows))
	for i, r := range rows {
		agents[i] = r.toAgent()
	}
	return agents, nil
}

func (s *SQLite) getAgentWhere(ctx context.Context, where string, arg any) (world.Agent, error) {
	var row agentRow
	err := s.conn.GetContext(ctx, &row, `
		SELECT id, name, x, y, symbol, personality_json, stats_json, memory_json,
		       relationships_json, current_action, created_at, updated_at
		FROM agents WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return world.Agent{}, world.ErrNotFound
	}
	if err != nil {
		return world.Agent{}, err
	}
	return row.toAgent(), nil
}

// GetAgent returns one agent by id.
func (s *SQLite) GetAgent(ctx context.Context, id string) (world.Agent, error) {
	return s.getAgentWhere(ctx, "id = ?", id)
}

// GetAgentByName returns one agent by display name.
func (s *SQLite) GetAgentByName(ctx context.Context, name string) (world.Agent, error) {
	return s.getAgentWhere(ctx, "name = ? COLLATE NOCASE", name)
}

// InsertAgent inserts a new agent, assigning an id when missing.
func (s *SQLite) InsertAgent(ctx context.Context, a world.Agent) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	personality, stats, memory, relationships, err := agentArgs(a)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO agents (id, name, x, y, symbol, personality_json, stats_json,
		                    memory_json, relationships_json, current_action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.X, a.Y, a.Symbol, personality, stats, memory, relationships,
		nullable(a.CurrentAction))
	if err != nil {
		return err
	}
	s.notifier.publish(Change{Table: "agents", Op: "insert", ID: a.ID})
	return nil
}

// UpdateAgent writes an agent's mutable state.
func (s *SQLite) UpdateAgent(ctx context.Context, a world.Agent) error {
	personality, stats, memory, relationships, err := agentArgs(a)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE agents
		SET x = ?, y = ?, personality_json = ?, stats_json = ?, memory_json = ?,
		    relationships_json = ?, current_action = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, a.X, a.Y, personality, stats, memory, relationships, nullable(a.CurrentAction), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return world.ErrNotFound
	}
	s.notifier.publish(Change{Table: "agents", Op: "update", ID: a.ID})
	return nil
}

// DeleteAgentsExcept removes every agent whose name is not in keep.
func (s *SQLite) DeleteAgentsExcept(ctx context.Context, keep []string) (int, error) {
	if len(keep) == 0 {
		res, err := s.conn.ExecContext(ctx, "DELETE FROM agents")
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		s.notifier.publish(Change{Table: "agents", Op: "delete"})
		return int(n), nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, len(keep))
	for i, name := range keep {
		args[i] = name
	}
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM agents WHERE name NOT IN ("+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifier.publish(Change{Table: "agents", Op: "delete"})
	}
	return int(n), nil
}

// --- locations ---

// ListLocations returns the static town locations.
func (s *SQLite) ListLocations(ctx context.Context) ([]world.Location, error) {
	var locations []world.Location
	err := s.conn.SelectContext(ctx, &locations, `
		SELECT id, name, type, x, y, width, height, symbol
		FROM locations ORDER BY name
	`)
	return locations, err
}

// --- events ---

type eventRow struct {
	ID           string         `db:"id"`
	NPCID        sql.NullString `db:"npc_id"`
	Type         string         `db:"type"`
	Description  string         `db:"description"`
	LocationJSON sql.NullString `db:"location_json"`
	MetadataJSON string         `db:"metadata_json"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r eventRow) toEvent() world.Event {
	e := world.Event{
		ID:          r.ID,
		Type:        r.Type,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
	if r.NPCID.Valid {
		e.AgentID = r.NPCID.String
	}
	if r.LocationJSON.Valid {
		var p world.Point
		if err := json.Unmarshal([]byte(r.LocationJSON.String), &p); err == nil {
			e.Location = &p
		}
	}
	json.Unmarshal([]byte(r.MetadataJSON), &e.Metadata)
	return e
}

// InsertEvent appends one event, assigning id and timestamp when missing.
func (s *SQLite) InsertEvent(ctx context.Context, e world.Event) (world.Event, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var locationJSON any
	if e.Location != nil {
		raw, err := json.Marshal(e.Location)
		if err != nil {
			return world.Event{}, err
		}
		locationJSON = string(raw)
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return world.Event{}, err
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO events (id, npc_id, type, description, location_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullable(e.AgentID), e.Type, e.Description, locationJSON, string(metadataJSON), e.CreatedAt)
	if err != nil {
		return world.Event{}, err
	}
	s.notifier.publish(Change{Table: "events", Op: "insert", ID: e.ID})
	return e, nil
}

// ListEvents returns the most recent events, newest first.
func (s *SQLite) ListEvents(ctx context.Context, limit int) ([]world.Event, error) {
	return s.selectEvents(ctx, "", "", limit)
}

// AgentEvents returns the most recent events for one agent, newest first.
func (s *SQLite) AgentEvents(ctx context.Context, agentID string, limit int) ([]world.Event, error) {
	return s.selectEvents(ctx, "WHERE npc_id = ?", agentID, limit)
}

func (s *SQLite) selectEvents(ctx context.Context, where, arg string, limit int) ([]world.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, npc_id, type, description, location_json, metadata_json, created_at
		FROM events ` + where + `
		ORDER BY created_at DESC LIMIT ?
	`
	var rows []eventRow
	var err error
	if where == "" {
		err = s.conn.SelectContext(ctx, &rows, query, limit)
	} else {
		err = s.conn.SelectContext(ctx, &rows, query, arg, limit)
	}
	if err != nil {
		return nil, err
	}
	events := make([]world.Event, len(rows))
	for i, r := range rows {
		events[i] = r.toEvent()
	}
	return events, nil
}

// DeleteAllEvents clears the event history. Only the reset controller calls
// this.
func (s *SQLite) DeleteAllEvents(ctx context.Context) (int, error) {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM events")
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifier.publish(Change{Table: "events", Op: "delete"})
	}
	return int(n), nil
}

// --- admin controls ---

// ResetRequested reads the stored reset flag.
func (s *SQLite) ResetRequested(ctx context.Context) (bool, error) {
	var value int
	err := s.conn.GetContext(ctx, &value, `
		SELECT setting_value FROM admin_controls WHERE setting_name = 'reset_game'
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// SetResetFlag writes the stored reset flag.
func (s *SQLite) SetResetFlag(ctx context.Context, requested bool) error {
	value := 0
	if requested {
		value = 1
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO admin_controls (setting_name, setting_value, updated_at)
		VALUES ('reset_game', ?, CURRENT_TIMESTAMP)
		ON CONFLICT(setting_name) DO UPDATE SET
			setting_value = excluded.setting_value,
			updated_at = CURRENT_TIMESTAMP
	`, value)
	if err != nil {
		return err
	}
	s.notifier.publish(Change{Table: "admin_controls", Op: "update", ID: "reset_game"})
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
