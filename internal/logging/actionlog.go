package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS action_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	assistant_id  TEXT NOT NULL,
	action_type   TEXT NOT NULL,
	target        TEXT,
	status        TEXT NOT NULL,
	detail_json   TEXT,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_log_assistant ON action_log(assistant_id, id);
`

// EnsureSchema creates the action_log table if needed.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate action log: %w", err)
	}
	return nil
}

// #endregion schema

// #region log-action

// LogAction writes an entry to the action_log table.
func LogAction(db *sql.DB, entry ActionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusInfo
	}

	_, err := db.Exec(
		`INSERT INTO action_log (assistant_id, action_type, target, status, detail_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.AssistantID,
		entry.ActionType,
		nullIfEmpty(entry.Target),
		entry.Status,
		nullIfEmpty(entry.DetailJSON),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// Detail marshals v for ActionEntry.DetailJSON, returning "" when it cannot be encoded.
func Detail(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// #endregion log-action

// #region recent-actions

// RecentActions returns the newest entries first. An empty assistantID matches every assistant.
func RecentActions(db *sql.DB, assistantID string, limit int) ([]ActionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, assistant_id, action_type, target, status, detail_json, reason, created_at
	          FROM action_log`
	args := []interface{}{}
	if assistantID != "" {
		query += ` WHERE assistant_id = ?`
		args = append(args, assistantID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent actions: %w", err)
	}
	defer rows.Close()

	var out []ActionEntry
	for rows.Next() {
		var (
			e                      ActionEntry
			target, detail, reason sql.NullString
			created                string
		)
		if err := rows.Scan(&e.ID, &e.AssistantID, &e.ActionType, &target, &e.Status, &detail, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		e.Target = target.String
		e.DetailJSON = detail.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent-actions

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
