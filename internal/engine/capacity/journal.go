package capacity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Op is the counter operation a journal entry guards.
type Op string

const (
	OpReserve Op = "reserve"
	OpRelease Op = "release"
)

// Entry records a counter change that must be paired with a referral write.
// It is written before the counter changes and cleared once the referral
// write has landed; an entry that outlives the grace period is dangling.
type Entry struct {
	ReferralID string    `json:"referralId"`
	SupplierID string    `json:"supplierId"`
	Op         Op        `json:"op"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Journal is the compensation log for reservations.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Lookup(ctx context.Context, referralID string, op Op) (*Entry, error)
	Clear(ctx context.Context, referralID string, op Op) error
	Pending(ctx context.Context) ([]Entry, error)
}

const DefaultJournalKey = "capacity:journal"

// RedisJournal keeps entries in one hash, field "<referralId>:<op>".
type RedisJournal struct {
	client redis.Cmdable
	key    string
}

func NewRedisJournal(client redis.Cmdable, key string) *RedisJournal {
	if key == "" {
		key = DefaultJournalKey
	}
	return &RedisJournal{client: client, key: key}
}

func field(referralID string, op Op) string {
	return referralID + ":" + string(op)
}

func (j *RedisJournal) Record(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if err := j.client.HSet(ctx, j.key, field(e.ReferralID, e.Op), payload).Err(); err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

func (j *RedisJournal) Lookup(ctx context.Context, referralID string, op Op) (*Entry, error) {
	raw, err := j.client.HGet(ctx, j.key, field(referralID, op)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal lookup: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	return &e, nil
}

func (j *RedisJournal) Clear(ctx context.Context, referralID string, op Op) error {
	if err := j.client.HDel(ctx, j.key, field(referralID, op)).Err(); err != nil {
		return fmt.Errorf("journal clear: %w", err)
	}
	return nil
}

// Pending returns every entry, oldest first. Undecodable entries are skipped.
func (j *RedisJournal) Pending(ctx context.Context) ([]Entry, error) {
	all, err := j.client.HGetAll(ctx, j.key).Result()
	if err != nil {
		return nil, fmt.Errorf("journal scan: %w", err)
	}
	out := make([]Entry, 0, len(all))
	for _, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].RecordedAt.Equal(out[k].RecordedAt) {
			return out[i].RecordedAt.Before(out[k].RecordedAt)
		}
		return field(out[i].ReferralID, out[i].Op) < field(out[k].ReferralID, out[k].Op)
	})
	return out, nil
}

// NopJournal is used when no Redis is configured; dangling reservations are
// then left to manual correction.
type NopJournal struct{}

func (NopJournal) Record(context.Context, Entry) error { return nil }
func (NopJournal) Lookup(context.Context, string, Op) (*Entry, error) { return nil, nil }
func (NopJournal) Clear(context.Context, string, Op) error { return nil }
func (NopJournal) Pending(context.Context) ([]Entry, error) { return nil, nil }
