package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alert-service/internal/domain"
	"alert-service/pkg/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id              BIGSERIAL PRIMARY KEY,
	event_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	station         TEXT NOT NULL DEFAULT '',
	route           TEXT NOT NULL DEFAULT '',
	flight          TEXT NOT NULL DEFAULT '',
	drawer          TEXT NOT NULL DEFAULT '',
	product_code    TEXT NOT NULL DEFAULT '',
	payload         JSONB NOT NULL DEFAULT '{}',
	deadline_ts     BIGINT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	state           TEXT NOT NULL DEFAULT 'new',
	acknowledged_at TIMESTAMPTZ,
	resolved_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_state ON notifications (state);
CREATE INDEX IF NOT EXISTS idx_notifications_station ON notifications (station);
CREATE INDEX IF NOT EXISTS idx_notifications_route ON notifications (route);
`

const recordColumns = `
	id, event_type, severity, station, route, flight, drawer, product_code,
	payload, deadline_ts, created_at, state, acknowledged_at, resolved_at`

// stateRankSQL orders lifecycle states inside a query the same way
// domain.StateRank does in Go.
const stateRankSQL = `CASE %s WHEN 'ack' THEN 1 WHEN 'resolved' THEN 2 ELSE 0 END`

type pgStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects, ensures the schema and returns the store.
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &pgStore{db: pool}, nil
}

func (p *pgStore) Append(ctx context.Context, draft *domain.Notification) (*domain.Notification, error) {
	payload, err := json.Marshal(draft.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	query := `
		INSERT INTO notifications (
			event_type, severity, station, route, flight, drawer,
			product_code, payload, deadline_ts, state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'new')
		RETURNING` + recordColumns

	row := p.db.QueryRow(ctx, query,
		draft.Type,
		draft.Severity,
		draft.Station,
		draft.Route,
		draft.Flight,
		draft.Drawer,
		draft.ProductCode,
		payload,
		draft.DeadlineTs,
	)
	return scanRecord(row)
}

func (p *pgStore) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `SELECT` + recordColumns + ` FROM notifications WHERE id = $1`
	n, err := scanRecord(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (p *pgStore) List(ctx context.Context, q ListQuery) ([]*domain.Notification, error) {
	q = q.clamp()

	query := `SELECT` + recordColumns + ` FROM notifications WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		query += " AND " + cond + "$" + strconv.Itoa(len(args))
	}
	if q.State != "" {
		add("state = ", q.State)
	}
	if q.Station != "" {
		add("station = ", q.Station)
	}
	if q.Route != "" {
		add("route = ", q.Route)
	}
	if q.Flight != "" {
		add("flight = ", q.Flight)
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrStoreUnavailable, rows.Err())
	}
	return out, nil
}

func (p *pgStore) Transition(ctx context.Context, id int64, target domain.State) (*domain.Notification, bool, error) {
	// Forward-only compare-and-set: the guarded UPDATE only hits when the
	// stored state ranks below the target, so concurrent callers cannot
	// move the record backward and the first effective transition owns the
	// timestamp.
	query := fmt.Sprintf(`
		UPDATE notifications
		SET state = $2,
		    acknowledged_at = CASE WHEN $2 = 'ack'
		        THEN COALESCE(acknowledged_at, now()) ELSE acknowledged_at END,
		    resolved_at = CASE WHEN $2 = 'resolved'
		        THEN COALESCE(resolved_at, now()) ELSE resolved_at END
		WHERE id = $1 AND `+stateRankSQL+` < `+stateRankSQL+`
		RETURNING`+recordColumns,
		"state", "$2")

	n, err := scanRecord(p.db.QueryRow(ctx, query, id, target))
	if err == nil {
		return n, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// No row moved: either the id is unknown or the transition is stale.
	// A stale transition is an idempotent success.
	current, err := p.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Notification, error) {
	var (
		n       domain.Notification
		payload []byte
	)
	err := row.Scan(
		&n.ID,
		&n.Type,
		&n.Severity,
		&n.Station,
		&n.Route,
		&n.Flight,
		&n.Drawer,
		&n.ProductCode,
		&payload,
		&n.DeadlineTs,
		&n.CreatedAt,
		&n.State,
		&n.AcknowledgedAt,
		&n.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		p, err := domain.DecodePayload(n.Type, payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload for id %d: %w", n.ID, err)
		}
		n.Payload = p
	}
	return &n, nil
}
