package logger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crucibleai/kernel/pkg/redaction"
)

// EventType is the closed set of structured event kinds the kernel emits.
type EventType string

const (
	EventUserMessage    EventType = "user_message"
	EventAgentResponse  EventType = "agent_response"
	EventAgentThoughts  EventType = "agent_thoughts"
	EventToolExecution  EventType = "tool_execution"
	EventToolResult     EventType = "tool_result"
	EventMemoryAccess   EventType = "memory_access"
	EventMemorySave     EventType = "memory_save"
	EventError          EventType = "error"
	EventCriticalError  EventType = "critical_error"
	EventWarning        EventType = "warning"
	EventIntervention   EventType = "intervention"
	EventExtensionFired EventType = "extension_fired"
	EventAgentComplete  EventType = "agent_complete"
	EventSystem         EventType = "system"
)

// EventLogEntry is one record of the dual-sink structured event log:
// JSONL file (rotated at UTC midnight) and the queryable sqlite store.
type EventLogEntry struct {
	ID         int64          `json:"id,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	Datetime   string         `json:"datetime"`
	EventType  EventType      `json:"event_type"`
	RoomID     string         `json:"room_id,omitempty"`
	Adapter    string         `json:"adapter,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	CostUSD    float64        `json:"cost_usd,omitempty"`
}

// EventStore is the queryable half of the Logger module: a
// modernc.org/sqlite-backed logs table with an FTS5 index over the event
// data, fed by the same Log call that writes the rotated JSONL files.
type EventStore struct {
	mu          sync.Mutex
	logDir      string
	db          *sql.DB
	currentDay  string
	currentFile *os.File
}

// NewEventStore opens (creating if needed) the JSONL log directory and the
// sqlite database backing the queryable sink.
func NewEventStore(logDir, dbPath string) (*EventStore, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open event store db: %w", err)
	}
	s := &EventStore{logDir: logDir, db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *EventStore) init() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		datetime TEXT NOT NULL,
		event_type TEXT NOT NULL,
		room_id TEXT,
		adapter TEXT,
		data TEXT,
		tokens_used INTEGER,
		cost_usd REAL
	)`); err != nil {
		return fmt.Errorf("create logs table: %w", err)
	}
	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS logs_fts USING fts5(
		data, content='logs', content_rowid='id'
	)`); err != nil {
		return fmt.Errorf("create logs_fts table: %w", err)
	}
	_, err := s.db.Exec(`CREATE TRIGGER IF NOT EXISTS logs_ai AFTER INSERT ON logs BEGIN
		INSERT INTO logs_fts(rowid, data) VALUES (new.id, new.data);
	END`)
	if err != nil {
		return fmt.Errorf("create logs_fts trigger: %w", err)
	}
	return nil
}

func (s *EventStore) rotatedPath(day string) string {
	return filepath.Join(s.logDir, day+".jsonl")
}

// ensureFile opens today's JSONL file, rotating away from yesterday's if
// the UTC day has rolled over since the last write.
func (s *EventStore) ensureFile(day string) error {
	if s.currentFile != nil && s.currentDay == day {
		return nil
	}
	if s.currentFile != nil {
		s.currentFile.Close()
	}
	f, err := os.OpenFile(s.rotatedPath(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open rotated log file: %w", err)
	}
	s.currentFile = f
	s.currentDay = day
	return nil
}

// Log appends entry to today's JSONL file and inserts it into the
// queryable store. data is redacted the same way plain log fields are.
func (s *EventStore) Log(eventType EventType, roomID, adapter string, data map[string]any, tokensUsed int, costUSD float64) error {
	if IsRedactionEnabled() && data != nil {
		data = redaction.RedactFields(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	entry := EventLogEntry{
		Timestamp:  now.Unix(),
		Datetime:   now.Format(time.RFC3339),
		EventType:  eventType,
		RoomID:     roomID,
		Adapter:    adapter,
		Data:       data,
		TokensUsed: tokensUsed,
		CostUSD:    costUSD,
	}

	day := now.Format("2006-01-02")
	if err := s.ensureFile(day); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal event entry: %w", err)
	}
	if _, err := s.currentFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event entry: %w", err)
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO logs (timestamp, datetime, event_type, room_id, adapter, data, tokens_used, cost_usd) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Datetime, string(entry.EventType), roomID, adapter, string(dataJSON), tokensUsed, costUSD,
	)
	if err != nil {
		return fmt.Errorf("insert event entry: %w", err)
	}
	return nil
}

// Query runs a full-text search over event data, newest match first.
func (s *EventStore) Query(text string, limit int) ([]EventLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT logs.id, logs.timestamp, logs.datetime, logs.event_type, logs.room_id, logs.adapter, logs.data, logs.tokens_used, logs.cost_usd
		FROM logs_fts
		JOIN logs ON logs.id = logs_fts.rowid
		WHERE logs_fts MATCH ?
		ORDER BY logs.id DESC
		LIMIT ?`, text, limit)
	if err != nil {
		return nil, fmt.Errorf("query event store: %w", err)
	}
	defer rows.Close()

	var out []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		var dataJSON string
		var roomID, adapter sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Datetime, &e.EventType, &roomID, &adapter, &dataJSON, &e.TokensUsed, &e.CostUSD); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.RoomID = roomID.String
		e.Adapter = adapter.String
		if dataJSON != "" {
			_ = json.Unmarshal([]byte(dataJSON), &e.Data)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close flushes and closes both sinks.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentFile != nil {
		s.currentFile.Close()
	}
	return s.db.Close()
}

var (
	eventStoreMu sync.RWMutex
	eventStore   *EventStore
)

// InitEventStore wires the package-level event sink used by LogEvent,
// matching the teacher's package-singleton convenience idiom for the
// plain level-based logger above.
func InitEventStore(logDir, dbPath string) error {
	store, err := NewEventStore(logDir, dbPath)
	if err != nil {
		return err
	}
	eventStoreMu.Lock()
	defer eventStoreMu.Unlock()
	eventStore = store
	return nil
}

// LogEvent records a structured event through the package-level store. It
// is a no-op if InitEventStore has not been called, so callers (e.g. the
// monologue engine) don't need a nil check at every call site.
func LogEvent(eventType EventType, roomID, adapter string, data map[string]any, tokensUsed int, costUSD float64) {
	eventStoreMu.RLock()
	store := eventStore
	eventStoreMu.RUnlock()
	if store == nil {
		return
	}
	if err := store.Log(eventType, roomID, adapter, data, tokensUsed, costUSD); err != nil {
		ErrorCF("logger", "event store write failed", map[string]any{"error": err.Error()})
	}
}

// QueryEvents full-text searches the package-level event store. Returns an
// error if InitEventStore was never called.
func QueryEvents(text string, limit int) ([]EventLogEntry, error) {
	eventStoreMu.RLock()
	store := eventStore
	eventStoreMu.RUnlock()
	if store == nil {
		return nil, fmt.Errorf("event store not initialized")
	}
	return store.Query(text, limit)
}

// CloseEventStore closes the package-level event store, if initialized.
func CloseEventStore() error {
	eventStoreMu.Lock()
	defer eventStoreMu.Unlock()
	if eventStore == nil {
		return nil
	}
	err := eventStore.Close()
	eventStore = nil
	return err
}
