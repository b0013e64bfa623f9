// Package storage keeps a sqlite ledger of finished handshakes.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/session"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("handshake log closed")
)

// DefaultRetention is how long records are kept when no retention is given.
const DefaultRetention = 30 * 24 * time.Hour

// HandshakeRecord is one stored session result.
type HandshakeRecord struct {
	ID               int64  `json:"id"`
	SessionID        string `json:"session_id"`
	Role             string `json:"role"`
	Mode             string `json:"mode"`
	VertexCount      int    `json:"vertex_count"`
	Outcome          string `json:"outcome"`
	Error            string `json:"error,omitempty"`
	StartedAt        int64  `json:"started_at"` // unix milliseconds
	DurationMs       int64  `json:"duration_ms"`
	BytesSent        int    `json:"bytes_sent"`
	BytesReceived    int    `json:"bytes_received"`
	LocalFingerprint string `json:"local_fingerprint,omitempty"`
	PeerFingerprint  string `json:"peer_fingerprint,omitempty"`
	States           string `json:"states"`
}

// Stats summarizes the ledger.
type Stats struct {
	Total         int64            `json:"total"`
	ByOutcome     map[string]int64 `json:"by_outcome"`
	AvgDurationMs float64          `json:"avg_duration_ms"`
	LastStartedAt int64            `json:"last_started_at,omitempty"`
}

// HandshakeLog stores session results in sqlite.
type HandshakeLog struct {
	db        *sql.DB
	retention time.Duration
	logger    log.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRecord converts a session result.
func NewRecord(r *session.Result) *HandshakeRecord {
	rec := &HandshakeRecord{
		SessionID:        r.SessionID.String(),
		Role:             r.Role.String(),
		Mode:             r.Mode.String(),
		VertexCount:      r.VertexCount,
		Outcome:          r.Outcome.String(),
		StartedAt:        r.StartedAt.UnixMilli(),
		DurationMs:       r.Duration.Milliseconds(),
		BytesSent:        r.BytesSent,
		BytesReceived:    r.BytesReceived,
		LocalFingerprint: r.LocalFingerprint,
		PeerFingerprint:  r.PeerFingerprint,
		States:           session.FormatStates(r.States),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// OpenHandshakeLog opens or creates the ledger at dbPath and starts the
// hourly pruning of records older than retention (DefaultRetention if 0).
func OpenHandshakeLog(dbPath string, retention time.Duration, logger log.Logger) (*HandshakeLog, error) {
	if retention == 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open handshake database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	l := &HandshakeLog{
		db:        db,
		retention: retention,
		logger:    logger.Named("storage"),
		stop:      make(chan struct{}),
	}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	l.wg.Add(1)
	go l.pruneLoop(time.Hour)

	return l, nil
}

func (l *HandshakeLog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS handshakes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		mode TEXT NOT NULL,
		vertex_count INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		bytes_sent INTEGER NOT NULL,
		bytes_received INTEGER NOT NULL,
		local_fingerprint TEXT NOT NULL DEFAULT '',
		peer_fingerprint TEXT NOT NULL DEFAULT '',
		states TEXT NOT NULL,
		UNIQUE(session_id, role)
	);

	CREATE INDEX IF NOT EXISTS idx_handshakes_session ON handshakes(session_id);
	CREATE INDEX IF NOT EXISTS idx_handshakes_started ON handshakes(started_at);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores rec and sets its ID.
func (l *HandshakeLog) Record(rec *HandshakeRecord) error {
	query := `
		INSERT INTO handshakes (session_id, role, mode, vertex_count, outcome, error, started_at,
			duration_ms, bytes_sent, bytes_received, local_fingerprint, peer_fingerprint, states)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := l.db.Exec(query, rec.SessionID, rec.Role, rec.Mode, rec.VertexCount, rec.Outcome,
		rec.Error, rec.StartedAt, rec.DurationMs, rec.BytesSent, rec.BytesReceived,
		rec.LocalFingerprint, rec.PeerFingerprint, rec.States)
	if err != nil {
		return fmt.Errorf("failed to record handshake %s: %w", rec.SessionID, err)
	}

	rec.ID, err = res.LastInsertId()
	return err
}

// SessionFinished records r. Failures are logged, not returned.
func (l *HandshakeLog) SessionFinished(r *session.Result) {
	if err := l.Record(NewRecord(r)); err != nil {
		l.logger.Errorw("failed to store handshake", "session", r.SessionID.String(), "err", err)
	}
}

const selectColumns = `SELECT id, session_id, role, mode, vertex_count, outcome, error, started_at,
	duration_ms, bytes_sent, bytes_received, local_fingerprint, peer_fingerprint, states
	FROM handshakes`

// Recent returns up to limit records, newest first.
func (l *HandshakeLog) Recent(limit int) ([]*HandshakeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(selectColumns+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list handshakes: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Get returns the records of one session, one per role seen locally.
func (l *HandshakeLog) Get(sessionID string) ([]*HandshakeRecord, error) {
	rows, err := l.db.Query(selectColumns+` WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get handshake: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

func scanRecords(rows *sql.Rows) ([]*HandshakeRecord, error) {
	var recs []*HandshakeRecord
	for rows.Next() {
		r := &HandshakeRecord{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Mode, &r.VertexCount, &r.Outcome,
			&r.Error, &r.StartedAt, &r.DurationMs, &r.BytesSent, &r.BytesReceived,
			&r.LocalFingerprint, &r.PeerFingerprint, &r.States); err != nil {
			return nil, fmt.Errorf("failed to scan handshake: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Stats returns totals per outcome and the mean duration.
func (l *HandshakeLog) Stats() (*Stats, error) {
	st := &Stats{ByOutcome: make(map[string]int64)}

	var avg sql.NullFloat64
	var last sql.NullInt64
	err := l.db.QueryRow(`SELECT COUNT(*), AVG(duration_ms), MAX(started_at) FROM handshakes`).
		Scan(&st.Total, &avg, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	st.AvgDurationMs = avg.Float64
	st.LastStartedAt = last.Int64

	rows, err := l.db.Query(`SELECT outcome, COUNT(*) FROM handshakes GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		st.ByOutcome[outcome] = n
	}
	return st, rows.Err()
}

// Prune deletes records started before cutoff and returns how many went.
func (l *HandshakeLog) Prune(cutoff time.Time) (int64, error) {
	res, err := l.db.Exec(`DELETE FROM handshakes WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune handshakes: %w", err)
	}
	return res.RowsAffected()
}

func (l *HandshakeLog) pruneLoop(interval time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			n, err := l.Prune(time.Now().Add(-l.retention))
			if err != nil {
				l.logger.Warnw("prune failed", "err", err)
			} else if n > 0 {
				l.logger.Infow("pruned old handshakes", "count", n)
			}
		}
	}
}

// Close stops pruning and closes the database.
func (l *HandshakeLog) Close() error {
	err := ErrClosed
	l.closeOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}
