package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS assistants (
	id               TEXT PRIMARY KEY,
	floor_plan_id    TEXT,
	pos_x            REAL NOT NULL,
	pos_y            REAL NOT NULL,
	current_room_id  TEXT,
	facing           TEXT NOT NULL DEFAULT 'down',
	current_action   TEXT NOT NULL DEFAULT 'idle',
	mood             TEXT NOT NULL DEFAULT 'content',
	expression       TEXT NOT NULL DEFAULT 'neutral',
	held_object_id   TEXT,
	target_x         REAL,
	target_y         REAL,
	movement_path    TEXT,
	energy           REAL NOT NULL DEFAULT 1.0,
	updated_at       TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store persists assistant state in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// OpenDB opens a SQLite database with the pragmas every store in this module expects.
// A single connection serializes writers from the navigation loop and request handlers.
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	s, err := NewStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromDB runs migrations on an already-open database.
func NewStoreFromDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor

// DB returns the underlying *sql.DB for use by other packages (floor plans, memory, logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region save

// Save inserts or replaces an assistant row.
func (s *Store) Save(a Assistant) error {
	pathJSON, err := encodePath(a.MovementPath)
	if err != nil {
		return err
	}
	var tx, ty interface{}
	if a.MovementTarget != nil {
		tx, ty = a.MovementTarget.X, a.MovementTarget.Y
	}
	_, err = s.db.Exec(
		`INSERT INTO assistants (id, floor_plan_id, pos_x, pos_y, current_room_id, facing, current_action,
		                         mood, expression, held_object_id, target_x, target_y, movement_path, energy, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			floor_plan_id = excluded.floor_plan_id, pos_x = excluded.pos_x, pos_y = excluded.pos_y,
			current_room_id = excluded.current_room_id, facing = excluded.facing,
			current_action = excluded.current_action, mood = excluded.mood, expression = excluded.expression,
			held_object_id = excluded.held_object_id, target_x = excluded.target_x, target_y = excluded.target_y,
			movement_path = excluded.movement_path, energy = excluded.energy, updated_at = excluded.updated_at`,
		a.ID, nullIfEmpty(a.FloorPlanID), a.Position.X, a.Position.Y, nullIfEmpty(a.CurrentRoomID),
		a.Facing, a.CurrentAction, a.Mood, a.Expression, nullIfEmpty(a.HeldObjectID),
		tx, ty, pathJSON, clampEnergy(a.Energy), now(),
	)
	if err != nil {
		return fmt.Errorf("save assistant %s: %w", a.ID, err)
	}
	return nil
}

// #endregion save

// #region get

const selectColumns = `id, floor_plan_id, pos_x, pos_y, current_room_id, facing, current_action, mood, expression,
	held_object_id, target_x, target_y, movement_path, energy, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAssistant(row scanner) (Assistant, error) {
	var (
		a                      Assistant
		planID, roomID, heldID sql.NullString
		targetX, targetY       sql.NullFloat64
		pathJSON               sql.NullString
		updatedStr             string
	)
	err := row.Scan(&a.ID, &planID, &a.Position.X, &a.Position.Y, &roomID, &a.Facing, &a.CurrentAction,
		&a.Mood, &a.Expression, &heldID, &targetX, &targetY, &pathJSON, &a.Energy, &updatedStr)
	if err != nil {
		return Assistant{}, err
	}
	a.FloorPlanID = planID.String
	a.CurrentRoomID = roomID.String
	a.HeldObjectID = heldID.String
	if targetX.Valid && targetY.Valid {
		a.MovementTarget = &geometry.Position{X: targetX.Float64, Y: targetY.Float64}
	}
	if pathJSON.Valid && pathJSON.String != "" {
		if err := json.Unmarshal([]byte(pathJSON.String), &a.MovementPath); err != nil {
			return Assistant{}, fmt.Errorf("unmarshal movement path: %w", err)
		}
	}
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return a, nil
}

// Get reads one assistant by id.
func (s *Store) Get(id string) (Assistant, error) {
	a, err := scanAssistant(s.db.QueryRow(`SELECT `+selectColumns+` FROM assistants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Assistant{}, fmt.Errorf("get assistant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Assistant{}, fmt.Errorf("get assistant %s: %w", id, err)
	}
	return a, nil
}

// List returns every assistant ordered by id.
func (s *Store) List() ([]Assistant, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM assistants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list assistants: %w", err)
	}
	defer rows.Close()

	var out []Assistant
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assistant: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// #endregion get

// #region field-updates

func (s *Store) update(id, op, query string, args ...interface{}) error {
	args = append(args, now(), id)
	res, err := s.db.Exec(`UPDATE assistants SET `+query+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// UpdatePosition moves the assistant and sets its facing. An empty facing keeps the old one.
func (s *Store) UpdatePosition(id string, pos geometry.Position, facing string) error {
	if facing == "" {
		return s.update(id, "update position", `pos_x = ?, pos_y = ?`, pos.X, pos.Y)
	}
	return s.update(id, "update position", `pos_x = ?, pos_y = ?, facing = ?`, pos.X, pos.Y, facing)
}

// UpdateRoom records the room the assistant is in.
func (s *Store) UpdateRoom(id, roomID string) error {
	return s.update(id, "update room", `current_room_id = ?`, nullIfEmpty(roomID))
}

// SetFloorPlan assigns the assistant to a floor plan.
func (s *Store) SetFloorPlan(id, planID string) error {
	return s.update(id, "set floor plan", `floor_plan_id = ?`, nullIfEmpty(planID))
}

// StartMovement stores the target and full path and marks the assistant as moving.
func (s *Store) StartMovement(id string, target geometry.Position, path []geometry.Position) error {
	pathJSON, err := encodePath(path)
	if err != nil {
		return err
	}
	return s.update(id, "start movement",
		`target_x = ?, target_y = ?, movement_path = ?, current_action = ?`,
		target.X, target.Y, pathJSON, ActionMoving)
}

// ClearMovement drops the movement target and path. A moving assistant becomes idle.
func (s *Store) ClearMovement(id string) error {
	return s.update(id, "clear movement",
		`target_x = NULL, target_y = NULL, movement_path = NULL,
		 current_action = CASE WHEN current_action = ? THEN ? ELSE current_action END`,
		ActionMoving, ActionIdle)
}

// SetAction sets the assistant's current action label.
func (s *Store) SetAction(id, action string) error {
	return s.update(id, "set action", `current_action = ?`, action)
}

// SetMood sets mood and, when non-empty, the facial expression.
func (s *Store) SetMood(id, mood, expression string) error {
	if expression == "" {
		return s.update(id, "set mood", `mood = ?`, mood)
	}
	return s.update(id, "set mood", `mood = ?, expression = ?`, mood, expression)
}

// SetHolding records the held object; an empty id means empty hands.
func (s *Store) SetHolding(id, objectID string) error {
	return s.update(id, "set holding", `held_object_id = ?`, nullIfEmpty(objectID))
}

// SetEnergy stores energy clamped to [0,1].
func (s *Store) SetEnergy(id string, energy float64) error {
	return s.update(id, "set energy", `energy = ?`, clampEnergy(energy))
}

// #endregion field-updates

// #region helpers

func encodePath(path []geometry.Position) (interface{}, error) {
	if len(path) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(path)
	if err != nil {
		return nil, fmt.Errorf("marshal movement path: %w", err)
	}
	return string(b), nil
}

func clampEnergy(e float64) float64 {
	return math.Max(0, math.Min(1, e))
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// #endregion helpers
