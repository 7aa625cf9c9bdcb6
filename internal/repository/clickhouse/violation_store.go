package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/dhruv-2604/social-echelon-sub002/internal/bucketing"
	"github.com/dhruv-2604/social-echelon-sub002/internal/client"
	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

const createTableDDL = `
CREATE TABLE IF NOT EXISTS ratelimit_violations (
    event_bucket     UInt8,
    event_date       Date,
    id               String,
    subject          String,
    resource         String,
    occurred_at      DateTime64(3, 'UTC'),
    cost_requested   Float64,
    tokens_available Float64,
    ip_address       String,
    user_agent       String
)
ENGINE = MergeTree
PARTITION BY (event_bucket, toYYYYMM(event_date))
ORDER BY (subject, occurred_at)
`

const insertQuery = `
INSERT INTO ratelimit_violations
    (event_bucket, event_date, id, subject, resource, occurred_at,
     cost_requested, tokens_available, ip_address, user_agent)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const listQuery = `
SELECT id, subject, resource, occurred_at, cost_requested,
       tokens_available, ip_address, user_agent
FROM ratelimit_violations
WHERE subject = ?
ORDER BY occurred_at DESC
LIMIT ?
`

// ViolationStore appends denial records to ClickHouse. Rows are spread over
// partitions by a murmur3 event bucket of the subject, the same scheme the
// platform uses for its other event tables.
type ViolationStore struct {
	client   *client.ClickHouseClient
	assigner *bucketing.Assigner
}

var _ ratelimit.ViolationStore = (*ViolationStore)(nil)

func NewViolationStore(client *client.ClickHouseClient, assigner *bucketing.Assigner) *ViolationStore {
	return &ViolationStore{client: client, assigner: assigner}
}

// EnsureSchema creates the violations table if it does not exist.
func (s *ViolationStore) EnsureSchema(ctx context.Context) error {
	if err := s.client.Exec(ctx, createTableDDL); err != nil {
		return fmt.Errorf("failed to create violations table: %w", err)
	}
	return nil
}

func (s *ViolationStore) Record(ctx context.Context, v ratelimit.Violation) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.client.Exec(ctx, insertQuery,
		uint8(s.assigner.EventBucket(v.Subject)),
		s.assigner.DateBucket(v.OccurredAt),
		v.ID,
		v.Subject,
		v.Resource,
		v.OccurredAt.UTC(),
		v.CostRequested,
		v.TokensAvailable,
		v.IPAddress,
		v.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

func (s *ViolationStore) List(ctx context.Context, subject string, limit int) ([]ratelimit.Violation, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.client.QueryRows(ctx, listQuery, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var out []ratelimit.Violation
	for rows.Next() {
		var v ratelimit.Violation
		var occurredAt time.Time
		if err := rows.Scan(&v.ID, &v.Subject, &v.Resource, &occurredAt,
			&v.CostRequested, &v.TokensAvailable, &v.IPAddress, &v.UserAgent); err != nil {
			return nil, fmt.Errorf("failed to scan violation row: %w", err)
		}
		v.OccurredAt = occurredAt
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read violation rows: %w", err)
	}
	return out, nil
}
