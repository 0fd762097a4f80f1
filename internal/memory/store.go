package memory

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// #endregion imports

// #region types

// Message is one stored conversation turn.
type Message struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"` // "user" | "assistant"
	Content   string                 `json:"content"`
	Persona   string                 `json:"persona,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Retrieved bool                   `json:"retrieved,omitempty"` // ranked by relevance rather than recency
}

// Options sizes the context windows returned by GetContext.
type Options struct {
	RecentContextSize int // newest messages always included
	RetrievedLimit    int // older messages ranked by keyword overlap
	ScanLimit         int // how many older messages are considered for ranking
	Logger            *zap.Logger
}

// DefaultOptions returns the stock context sizes.
func DefaultOptions() Options {
	return Options{RecentContextSize: 10, RetrievedLimit: 5, ScanLimit: 500}
}

// #endregion types

// #region store

// Store persists the conversation in SQLite.
type Store struct {
	db   *sql.DB
	opts Options
	log  *zap.Logger
}

// NewStore creates the messages table if needed and returns a store.
func NewStore(db *sql.DB, opts Options) (*Store, error) {
	d := DefaultOptions()
	if opts.RecentContextSize <= 0 {
		opts.RecentContextSize = d.RecentContextSize
	}
	if opts.RetrievedLimit < 0 {
		opts.RetrievedLimit = 0
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = d.ScanLimit
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{db: db, opts: opts, log: log.Named("memory")}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		persona TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_persona ON messages(persona, seq);`)
	if err != nil {
		return fmt.Errorf("migrate messages: %w", err)
	}
	return nil
}

// RecentContextSize is the number of newest messages GetContext always returns.
func (s *Store) RecentContextSize() int {
	return s.opts.RecentContextSize
}

// Save stores one turn.
func (s *Store) Save(ctx context.Context, role, content, persona string, metadata map[string]interface{}) (Message, error) {
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Persona:   persona,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	var metaJSON interface{}
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return Message{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, persona, role, content, metadata_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, persona, role, content, metaJSON, msg.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// Recent returns up to n newest messages for persona in chronological order.
// An empty persona matches every message.
func (s *Store) Recent(ctx context.Context, persona string, n int) ([]Message, error) {
	rows, err := s.query(ctx, persona, `ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	reverse(rows)
	return rows, nil
}

// GetContext returns older messages relevant to current followed by the newest
// RecentContextSize messages. Retrieved messages come in relevance order.
func (s *Store) GetContext(ctx context.Context, current, persona string) ([]Message, error) {
	window, err := s.query(ctx, persona, `ORDER BY seq DESC LIMIT ?`, s.opts.RecentContextSize+s.opts.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}

	cut := min(len(window), s.opts.RecentContextSize)
	recent := window[:cut]
	reverse(recent)

	retrieved := s.rank(current, window[cut:])
	out := make([]Message, 0, len(retrieved)+len(recent))
	out = append(out, retrieved...)
	return append(out, recent...), nil
}

// rank scores older messages (newest first) by keyword overlap with current.
func (s *Store) rank(current string, older []Message) []Message {
	if s.opts.RetrievedLimit == 0 || len(older) == 0 {
		return nil
	}
	query := Tokenize(current)
	if len(query) == 0 {
		return nil
	}

	type scored struct {
		msg   Message
		score int
		order int
	}
	var hits []scored
	for i, m := range older {
		if n := SharedKeywords(query, Tokenize(m.Content)); n > 0 {
			m.Retrieved = true
			hits = append(hits, scored{msg: m, score: n, order: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})

	if len(hits) > s.opts.RetrievedLimit {
		hits = hits[:s.opts.RetrievedLimit]
	}
	out := make([]Message, len(hits))
	for i, h := range hits {
		out[i] = h.msg
	}
	return out
}

// Clear deletes the stored conversation for persona, or everything when persona is empty.
func (s *Store) Clear(ctx context.Context, persona string) error {
	var err error
	if persona == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM messages`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE persona = ?`, persona)
	}
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, persona, tail string, limit int) ([]Message, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, persona, role, content, metadata_json, created_at FROM messages`)
	args := []interface{}{}
	if persona != "" {
		b.WriteString(` WHERE persona = ?`)
		args = append(args, persona)
	}
	b.WriteString(" ")
	b.WriteString(tail)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m        Message
			metaJSON sql.NullString
			created  string
		)
		if err := rows.Scan(&m.ID, &m.Persona, &m.Role, &m.Content, &metaJSON, &created); err != nil {
			return nil, err
		}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
				// keep the turn; only its metadata is lost
				s.log.Warn("bad message metadata", zap.String("id", m.ID), zap.Error(err))
				m.Metadata = nil
			}
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// #endregion store
