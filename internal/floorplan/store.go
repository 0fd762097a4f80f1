package floorplan

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
)

// ErrNotFound is returned when a floor plan, room, doorway or furniture item does not exist.
var ErrNotFound = errors.New("floorplan: not found")

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS floor_plans (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	width     REAL NOT NULL,
	height    REAL NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rooms (
	id             TEXT PRIMARY KEY,
	floor_plan_id  TEXT NOT NULL,
	name           TEXT NOT NULL,
	room_type      TEXT NOT NULL DEFAULT '',
	x              REAL NOT NULL,
	y              REAL NOT NULL,
	width          REAL NOT NULL CHECK (width >= 0),
	height         REAL NOT NULL CHECK (height >= 0),
	floor_material TEXT NOT NULL DEFAULT '',
	lighting       TEXT NOT NULL DEFAULT '',
	temperature    REAL NOT NULL DEFAULT 0,
	is_accessible  INTEGER NOT NULL DEFAULT 1,
	seq            INTEGER NOT NULL,
	FOREIGN KEY (floor_plan_id) REFERENCES floor_plans(id)
);

CREATE TABLE IF NOT EXISTS walls (
	id            TEXT PRIMARY KEY,
	floor_plan_id TEXT NOT NULL,
	start_x       REAL NOT NULL,
	start_y       REAL NOT NULL,
	end_x         REAL NOT NULL,
	end_y         REAL NOT NULL,
	wall_type     TEXT NOT NULL DEFAULT 'interior',
	thickness     REAL NOT NULL DEFAULT 0,
	seq           INTEGER NOT NULL,
	FOREIGN KEY (floor_plan_id) REFERENCES floor_plans(id)
);

CREATE TABLE IF NOT EXISTS doorways (
	id                   TEXT PRIMARY KEY,
	floor_plan_id        TEXT NOT NULL,
	wall_id              TEXT NOT NULL,
	position_on_wall     REAL NOT NULL,
	width                REAL NOT NULL,
	room_a_id            TEXT NOT NULL,
	room_b_id            TEXT NOT NULL,
	is_accessible        INTEGER NOT NULL DEFAULT 1,
	has_door             INTEGER NOT NULL DEFAULT 0,
	door_state           TEXT NOT NULL DEFAULT 'open',
	requires_interaction INTEGER NOT NULL DEFAULT 0,
	seq                  INTEGER NOT NULL,
	CHECK (room_a_id <> room_b_id),
	FOREIGN KEY (floor_plan_id) REFERENCES floor_plans(id)
);

CREATE TABLE IF NOT EXISTS furniture (
	id             TEXT PRIMARY KEY,
	floor_plan_id  TEXT NOT NULL,
	room_id        TEXT,
	name           TEXT NOT NULL,
	item_type      TEXT NOT NULL DEFAULT '',
	x              REAL NOT NULL,
	y              REAL NOT NULL,
	rotation       REAL NOT NULL DEFAULT 0,
	width          REAL NOT NULL,
	height         REAL NOT NULL,
	is_solid       INTEGER NOT NULL DEFAULT 1,
	is_movable     INTEGER NOT NULL DEFAULT 0,
	is_interactive INTEGER NOT NULL DEFAULT 0,
	is_surface     INTEGER NOT NULL DEFAULT 0,
	state_json     TEXT NOT NULL DEFAULT '{}',
	seq            INTEGER NOT NULL,
	FOREIGN KEY (floor_plan_id) REFERENCES floor_plans(id)
);
CREATE INDEX IF NOT EXISTS idx_furniture_room ON furniture(room_id);
`

// #endregion schema

// #region store-struct

// Store reads and writes floor-plan records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the floor-plan tables if needed and returns a Store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("floorplan schema: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store-struct

// #region save-layout

// SaveLayout replaces every record of layout.Plan.ID with the given layout.
// When the plan is marked active, every other plan is deactivated.
func (s *Store) SaveLayout(layout Layout) error {
	planID := layout.Plan.ID
	if planID == "" {
		return fmt.Errorf("save layout: floor plan id required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"furniture", "doorways", "walls", "rooms"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE floor_plan_id = ?`, planID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if layout.Plan.Active {
		if _, err := tx.Exec(`UPDATE floor_plans SET is_active = 0`); err != nil {
			return fmt.Errorf("deactivate plans: %w", err)
		}
	}
	_, err = tx.Exec(
		`INSERT INTO floor_plans (id, name, width, height, is_active) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, width = excluded.width,
		   height = excluded.height, is_active = excluded.is_active`,
		planID, layout.Plan.Name, layout.Plan.Width, layout.Plan.Height, boolInt(layout.Plan.Active),
	)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}

	for i, r := range layout.Rooms {
		if r.Width < 0 || r.Height < 0 {
			return fmt.Errorf("room %s: negative bounds", r.ID)
		}
		_, err := tx.Exec(
			`INSERT INTO rooms (id, floor_plan_id, name, room_type, x, y, width, height,
			   floor_material, lighting, temperature, is_accessible, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, planID, r.Name, r.Type, r.X, r.Y, r.Width, r.Height,
			r.FloorMaterial, r.Lighting, r.Temperature, boolInt(r.Accessible), i,
		)
		if err != nil {
			return fmt.Errorf("insert room %s: %w", r.ID, err)
		}
	}

	for i, w := range layout.Walls {
		_, err := tx.Exec(
			`INSERT INTO walls (id, floor_plan_id, start_x, start_y, end_x, end_y, wall_type, thickness, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, planID, w.Start.X, w.Start.Y, w.End.X, w.End.Y, w.Type, w.Thickness, i,
		)
		if err != nil {
			return fmt.Errorf("insert wall %s: %w", w.ID, err)
		}
	}

	for i, d := range layout.Doorways {
		if d.RoomA == d.RoomB {
			return fmt.Errorf("doorway %s: connects room %s to itself", d.ID, d.RoomA)
		}
		state := d.DoorState
		if state == "" {
			state = DoorOpen
		}
		_, err := tx.Exec(
			`INSERT INTO doorways (id, floor_plan_id, wall_id, position_on_wall, width, room_a_id, room_b_id,
			   is_accessible, has_door, door_state, requires_interaction, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, planID, d.WallID, d.PositionOnWall, d.Width, d.RoomA, d.RoomB,
			boolInt(d.Accessible), boolInt(d.HasDoor), string(state), boolInt(d.RequiresInteraction), i,
		)
		if err != nil {
			return fmt.Errorf("insert doorway %s: %w", d.ID, err)
		}
	}

	for i, f := range layout.Furniture {
		stateJSON, err := json.Marshal(nonNilState(f.State))
		if err != nil {
			return fmt.Errorf("marshal furniture state: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO furniture (id, floor_plan_id, room_id, name, item_type, x, y, rotation, width, height,
			   is_solid, is_movable, is_interactive, is_surface, state_json, seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, planID, nullIfEmpty(f.RoomID), f.Name, f.Type, f.Position.X, f.Position.Y, f.Rotation,
			f.Width, f.Height, boolInt(f.Solid), boolInt(f.Movable), boolInt(f.Interactive),
			boolInt(f.Surface), string(stateJSON), i,
		)
		if err != nil {
			return fmt.Errorf("insert furniture %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion save-layout

// #region plans

// ActivePlan returns the floor plan currently marked active.
func (s *Store) ActivePlan() (FloorPlan, error) {
	row := s.db.QueryRow(`SELECT id, name, width, height, is_active FROM floor_plans WHERE is_active = 1 LIMIT 1`)
	return scanPlan(row)
}

// Plan returns a floor plan by id.
func (s *Store) Plan(id string) (FloorPlan, error) {
	row := s.db.QueryRow(`SELECT id, name, width, height, is_active FROM floor_plans WHERE id = ?`, id)
	return scanPlan(row)
}

// Activate marks planID as the only active plan.
func (s *Store) Activate(planID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM floor_plans WHERE id = ?`, planID).Scan(&exists); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`UPDATE floor_plans SET is_active = CASE WHEN id = ? THEN 1 ELSE 0 END`, planID); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return tx.Commit()
}

func scanPlan(row *sql.Row) (FloorPlan, error) {
	var p FloorPlan
	var active int
	if err := row.Scan(&p.ID, &p.Name, &p.Width, &p.Height, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FloorPlan{}, ErrNotFound
		}
		return FloorPlan{}, fmt.Errorf("scan plan: %w", err)
	}
	p.Active = active == 1
	return p, nil
}

// #endregion plans

// #region rooms

// Rooms returns every room of a plan in layout order.
func (s *Store) Rooms(planID string) ([]Room, error) {
	rows, err := s.db.Query(
		`SELECT id, floor_plan_id, name, room_type, x, y, width, height, floor_material, lighting,
		   temperature, is_accessible
		 FROM rooms WHERE floor_plan_id = ? ORDER BY seq`, planID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		var accessible int
		if err := rows.Scan(&r.ID, &r.FloorPlanID, &r.Name, &r.Type, &r.X, &r.Y, &r.Width, &r.Height,
			&r.FloorMaterial, &r.Lighting, &r.Temperature, &accessible); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Accessible = accessible == 1
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Room returns a single room by id.
func (s *Store) Room(id string) (Room, error) {
	var r Room
	var accessible int
	err := s.db.QueryRow(
		`SELECT id, floor_plan_id, name, room_type, x, y, width, height, floor_material, lighting,
		   temperature, is_accessible
		 FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.FloorPlanID, &r.Name, &r.Type, &r.X, &r.Y, &r.Width, &r.Height,
		&r.FloorMaterial, &r.Lighting, &r.Temperature, &accessible)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("query room: %w", err)
	}
	r.Accessible = accessible == 1
	return r, nil
}

// #endregion rooms

// #region walls-doorways

// Walls returns every wall of a plan in layout order.
func (s *Store) Walls(planID string) ([]Wall, error) {
	rows, err := s.db.Query(
		`SELECT id, floor_plan_id, start_x, start_y, end_x, end_y, wall_type, thickness
		 FROM walls WHERE floor_plan_id = ? ORDER BY seq`, planID)
	if err != nil {
		return nil, fmt.Errorf("query walls: %w", err)
	}
	defer rows.Close()

	var walls []Wall
	for rows.Next() {
		var w Wall
		if err := rows.Scan(&w.ID, &w.FloorPlanID, &w.Start.X, &w.Start.Y, &w.End.X, &w.End.Y,
			&w.Type, &w.Thickness); err != nil {
			return nil, fmt.Errorf("scan wall: %w", err)
		}
		walls = append(walls, w)
	}
	return walls, rows.Err()
}

// Doorways returns every doorway of a plan in layout order.
func (s *Store) Doorways(planID string) ([]Doorway, error) {
	rows, err := s.db.Query(
		`SELECT id, floor_plan_id, wall_id, position_on_wall, width, room_a_id, room_b_id,
		   is_accessible, has_door, door_state, requires_interaction
		 FROM doorways WHERE floor_plan_id = ? ORDER BY seq`, planID)
	if err != nil {
		return nil, fmt.Errorf("query doorways: %w", err)
	}
	defer rows.Close()

	var doorways []Doorway
	for rows.Next() {
		var d Doorway
		var accessible, hasDoor, requires int
		var state string
		if err := rows.Scan(&d.ID, &d.FloorPlanID, &d.WallID, &d.PositionOnWall, &d.Width, &d.RoomA, &d.RoomB,
			&accessible, &hasDoor, &state, &requires); err != nil {
			return nil, fmt.Errorf("scan doorway: %w", err)
		}
		d.Accessible = accessible == 1
		d.HasDoor = hasDoor == 1
		d.DoorState = DoorState(state)
		d.RequiresInteraction = requires == 1
		doorways = append(doorways, d)
	}
	return doorways, rows.Err()
}

// SetDoorState changes the state of a doorway's door.
func (s *Store) SetDoorState(doorwayID string, state DoorState) error {
	res, err := s.db.Exec(`UPDATE doorways SET door_state = ? WHERE id = ?`, string(state), doorwayID)
	if err != nil {
		return fmt.Errorf("set door state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// #endregion walls-doorways

// #region furniture

const furnitureColumns = `id, floor_plan_id, room_id, name, item_type, x, y, rotation, width, height,
	is_solid, is_movable, is_interactive, is_surface, state_json`

// Furniture returns every furniture item of a plan in layout order.
func (s *Store) Furniture(planID string) ([]FurnitureItem, error) {
	return s.queryFurniture(`SELECT `+furnitureColumns+` FROM furniture WHERE floor_plan_id = ? ORDER BY seq`, planID)
}

// FurnitureInRoom returns the items assigned to roomID.
func (s *Store) FurnitureInRoom(roomID string) ([]FurnitureItem, error) {
	return s.queryFurniture(`SELECT `+furnitureColumns+` FROM furniture WHERE room_id = ? ORDER BY seq`, roomID)
}

// Item returns one furniture item by id.
func (s *Store) Item(id string) (FurnitureItem, error) {
	items, err := s.queryFurniture(`SELECT `+furnitureColumns+` FROM furniture WHERE id = ?`, id)
	if err != nil {
		return FurnitureItem{}, err
	}
	if len(items) == 0 {
		return FurnitureItem{}, ErrNotFound
	}
	return items[0], nil
}

func (s *Store) queryFurniture(query string, args ...interface{}) ([]FurnitureItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query furniture: %w", err)
	}
	defer rows.Close()

	var items []FurnitureItem
	for rows.Next() {
		var f FurnitureItem
		var roomID sql.NullString
		var solid, movable, interactive, surface int
		var stateJSON string
		if err := rows.Scan(&f.ID, &f.FloorPlanID, &roomID, &f.Name, &f.Type, &f.Position.X, &f.Position.Y,
			&f.Rotation, &f.Width, &f.Height, &solid, &movable, &interactive, &surface, &stateJSON); err != nil {
			return nil, fmt.Errorf("scan furniture: %w", err)
		}
		f.RoomID = roomID.String
		f.Solid = solid == 1
		f.Movable = movable == 1
		f.Interactive = interactive == 1
		f.Surface = surface == 1
		f.State = map[string]string{}
		if err := json.Unmarshal([]byte(stateJSON), &f.State); err != nil {
			return nil, fmt.Errorf("unmarshal furniture state %s: %w", f.ID, err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// SetItemState sets one key of an item's state map.
func (s *Store) SetItemState(itemID, key, value string) (FurnitureItem, error) {
	item, err := s.Item(itemID)
	if err != nil {
		return FurnitureItem{}, err
	}
	item.State[key] = value
	stateJSON, err := json.Marshal(item.State)
	if err != nil {
		return FurnitureItem{}, fmt.Errorf("marshal furniture state: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE furniture SET state_json = ? WHERE id = ?`, string(stateJSON), itemID); err != nil {
		return FurnitureItem{}, fmt.Errorf("set item state: %w", err)
	}
	return item, nil
}

// MoveItem relocates an item. Position is the new top-left corner.
func (s *Store) MoveItem(itemID string, pos geometry.Position, roomID string) error {
	res, err := s.db.Exec(`UPDATE furniture SET x = ?, y = ?, room_id = ? WHERE id = ?`,
		pos.X, pos.Y, nullIfEmpty(roomID), itemID)
	if err != nil {
		return fmt.Errorf("move item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// #endregion furniture

// #region layout

// Layout loads every record of a plan.
func (s *Store) Layout(planID string) (Layout, error) {
	plan, err := s.Plan(planID)
	if err != nil {
		return Layout{}, err
	}
	rooms, err := s.Rooms(planID)
	if err != nil {
		return Layout{}, err
	}
	walls, err := s.Walls(planID)
	if err != nil {
		return Layout{}, err
	}
	doorways, err := s.Doorways(planID)
	if err != nil {
		return Layout{}, err
	}
	furniture, err := s.Furniture(planID)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Plan: plan, Rooms: rooms, Walls: walls, Doorways: doorways, Furniture: furniture}, nil
}

// #endregion layout

// #region helpers

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonNilState(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// #endregion helpers
