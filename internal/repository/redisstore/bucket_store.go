package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dhruv-2604/social-echelon-sub002/internal/client"
	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

const bucketKeyPrefix = "ratelimit:bucket:"

// saveScript is a conditional write: it applies the new state only when the
// stored fields still match what the caller read. A mismatch means another
// writer got there first and the caller must re-read and retry. Running the
// compare and the write in one script keeps the whole thing atomic on the
// Redis side.
const saveScript = `
local tokens = redis.call('HGET', KEYS[1], 'tokens')
local last = redis.call('HGET', KEYS[1], 'last_refill')
if ARGV[1] == '0' then
    if tokens then return 0 end
else
    if not tokens then return 0 end
    if tokens ~= ARGV[2] or last ~= ARGV[3] then return 0 end
end
redis.call('HSET', KEYS[1], 'tokens', ARGV[4], 'last_refill', ARGV[5])
redis.call('EXPIRE', KEYS[1], ARGV[6])
return 1
`

// BucketStore persists bucket state in Redis hashes with a TTL, using the
// conditional-write script to honor the StateStore CAS contract.
type BucketStore struct {
	client *client.RedisClient
	ttl    time.Duration
}

var _ ratelimit.StateStore = (*BucketStore)(nil)

func NewBucketStore(client *client.RedisClient, ttl time.Duration) *BucketStore {
	return &BucketStore{client: client, ttl: ttl}
}

func (s *BucketStore) Load(ctx context.Context, key ratelimit.BucketKey) (ratelimit.State, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.OpTimeout())
	defer cancel()

	fields, err := s.client.HGetAll(ctx, redisKey(key))
	if err != nil {
		return ratelimit.State{}, false, fmt.Errorf("failed to load bucket state: %w", err)
	}
	if len(fields) == 0 {
		return ratelimit.State{}, false, nil
	}

	tokens, err := strconv.ParseFloat(fields["tokens"], 64)
	if err != nil {
		return ratelimit.State{}, false, fmt.Errorf("corrupt bucket tokens %q: %w", fields["tokens"], err)
	}
	lastMicro, err := strconv.ParseInt(fields["last_refill"], 10, 64)
	if err != nil {
		return ratelimit.State{}, false, fmt.Errorf("corrupt bucket timestamp %q: %w", fields["last_refill"], err)
	}

	return ratelimit.State{Tokens: tokens, LastRefill: time.UnixMicro(lastMicro)}, true, nil
}

func (s *BucketStore) Save(ctx context.Context, key ratelimit.BucketKey, prev *ratelimit.State, next ratelimit.State) error {
	ctx, cancel := context.WithTimeout(ctx, s.client.OpTimeout())
	defer cancel()

	prevExists := "0"
	prevTokens := ""
	prevLast := ""
	if prev != nil {
		prevExists = "1"
		prevTokens = formatTokens(prev.Tokens)
		prevLast = formatMicros(prev.LastRefill)
	}

	res, err := s.client.Eval(ctx, saveScript, []string{redisKey(key)},
		prevExists,
		prevTokens,
		prevLast,
		formatTokens(next.Tokens),
		formatMicros(next.LastRefill),
		int(s.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to save bucket state: %w", err)
	}
	if applied, ok := res.(int64); !ok || applied != 1 {
		return ratelimit.ErrConflict
	}
	return nil
}

func (s *BucketStore) Delete(ctx context.Context, key ratelimit.BucketKey) error {
	ctx, cancel := context.WithTimeout(ctx, s.client.OpTimeout())
	defer cancel()

	if err := s.client.Del(ctx, redisKey(key)); err != nil {
		return fmt.Errorf("failed to delete bucket state: %w", err)
	}
	return nil
}

func (s *BucketStore) DeleteSubject(ctx context.Context, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*s.client.OpTimeout())
	defer cancel()

	keys, err := s.client.ScanKeys(ctx, bucketKeyPrefix+subject+":*")
	if err != nil {
		return fmt.Errorf("failed to scan bucket keys for subject: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete bucket keys for subject: %w", err)
	}
	return nil
}

func redisKey(key ratelimit.BucketKey) string {
	return bucketKeyPrefix + key.Subject + ":" + key.Resource
}

// formatTokens must produce identical strings for identical values: the
// conditional write compares them byte for byte.
func formatTokens(tokens float64) string {
	return strconv.FormatFloat(tokens, 'f', -1, 64)
}

func formatMicros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
