// Package deferred is the deferred-delivery facility: a SQLite table of
// time-fired bell requests plus capability grants, and a dispatcher that
// plays requests when they fall due.
//
// SQLite in WAL mode lets the UI process submit requests while a
// separate dispatcher process (or goroutine) delivers them, so bells keep
// ringing when the UI is stopped.
package deferred

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// ErrCapabilityDenied is returned when an operation needs a grant the
// user has not given.
var ErrCapabilityDenied = errors.New("capability denied")

// Capability names a permission the app may hold.
type Capability string

const (
	Notifications Capability = "notifications"
	Location      Capability = "location"
)

// ParseCapability validates a capability name from the command line.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(s)); c {
	case Notifications, Location:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability %q (want notifications or location)", s)
	}
}

// GrantState is the recorded decision for a capability.
type GrantState string

const (
	Undetermined GrantState = "undetermined"
	Granted      GrantState = "granted"
	Denied       GrantState = "denied"
)

// Request is a scheduled bell delivery.
type Request struct {
	ID        string
	Source    string
	FireAt    time.Time
	Boundary  bell.Boundary
	Pattern   bell.Pattern
	CreatedAt time.Time
}

// Store manages the SQLite database.
type Store struct {
	db       *sql.DB
	policies map[Capability]GrantState
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the decision RequestAuthorization records for c when
// no decision exists yet. Without a policy the capability stays
// undetermined until granted explicitly.
func WithPolicy(c Capability, state GrantState) Option {
	return func(s *Store) { s.policies[c] = state }
}

// New opens (or creates) the database and initializes the schema.
func New(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, policies: make(map[Capability]GrantState)}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		fire_at    INTEGER NOT NULL,
		boundary   INTEGER NOT NULL,
		pattern    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_fire_at ON requests(fire_at);
	CREATE INDEX IF NOT EXISTS idx_requests_source ON requests(source, fire_at);

	CREATE TABLE IF NOT EXISTS grants (
		capability TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		decided_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Grants
// ---------------------------------------------------------------------------

// SetGrant records an explicit decision for c.
func (s *Store) SetGrant(ctx context.Context, c Capability, state GrantState) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO grants (capability, state, decided_at) VALUES (?, ?, ?)
			 ON CONFLICT(capability) DO UPDATE SET state = excluded.state, decided_at = excluded.decided_at`,
			string(c), string(state), now,
		)
		return err
	})
}

// Grant returns the recorded decision for c, Undetermined if none.
func (s *Store) Grant(ctx context.Context, c Capability) (GrantState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM grants WHERE capability = ?`, string(c),
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return Undetermined, nil
	}
	if err != nil {
		return Undetermined, fmt.Errorf("get grant %s: %w", c, err)
	}
	return GrantState(state), nil
}

// Authorized reports whether c is granted. Read errors count as not
// granted.
func (s *Store) Authorized(ctx context.Context, c Capability) bool {
	state, err := s.Grant(ctx, c)
	return err == nil && state == Granted
}

// RequestAuthorization records the configured policy for c if the user
// has not decided yet. Existing decisions are left alone, so repeated
// calls are harmless.
func (s *Store) RequestAuthorization(ctx context.Context, c Capability) error {
	state, ok := s.policies[c]
	if !ok || state == Undetermined {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO grants (capability, state, decided_at) VALUES (?, ?, ?)
			 ON CONFLICT(capability) DO NOTHING`,
			string(c), string(state), now,
		)
		return err
	})
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// Submit stores a request to play p at fireAt. It fails with
// ErrCapabilityDenied unless notifications are granted.
func (s *Store) Submit(ctx context.Context, source string, fireAt time.Time, b bell.Boundary, p bell.Pattern) (string, error) {
	if !s.Authorized(ctx, Notifications) {
		return "", ErrCapabilityDenied
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO requests (id, source, fire_at, boundary, pattern, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, source, fireAt.UnixNano(), int(b), p.String(), now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("submit request: %w", err)
	}
	return id, nil
}

// Pending returns requests from source that have not been delivered or
// cancelled, ordered by fire time. An empty source matches all.
func (s *Store) Pending(ctx context.Context, source string) ([]Request, error) {
	q := `SELECT id, source, fire_at, boundary, pattern, created_at FROM requests`
	var args []any
	if source != "" {
		q += ` WHERE source = ?`
		args = append(args, source)
	}
	q += ` ORDER BY fire_at, id`
	return s.queryRequests(ctx, q, args...)
}

// Due returns up to limit requests whose fire time is at or before now.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 64
	}
	return s.queryRequests(ctx,
		`SELECT id, source, fire_at, boundary, pattern, created_at FROM requests
		 WHERE fire_at <= ? ORDER BY fire_at, id LIMIT ?`,
		now.UnixNano(), limit,
	)
}

// Cancel deletes the given requests and returns how many existed.
func (s *Store) Cancel(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM requests WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cancel requests: %w", err)
	}
	return int(n), nil
}

// Claim removes a request so that exactly one dispatcher delivers it.
// It reports false if another claimant or a cancel got there first.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	n, err := s.Cancel(ctx, []string{id})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", id, err)
	}
	return n == 1, nil
}

// CountPending returns the number of stored requests.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

func (s *Store) queryRequests(ctx context.Context, q string, args ...any) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var (
			r                  Request
			fireAt             int64
			boundary           int
			pattern, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Source, &fireAt, &boundary, &pattern, &createdAt); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.FireAt = time.Unix(0, fireAt)
		r.Boundary = bell.Boundary(boundary)
		if r.Pattern, err = bell.ParsePattern(pattern); err != nil {
			return nil, fmt.Errorf("request %s: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
