package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys. Orphans and pending event ids are sorted sets scored by the
// unix time they were recorded; event bodies live in a hash keyed by id.
const (
	keyOrphans       = "slips:orphans"
	keyPendingEvents = "slips:pending_events"
	keyEventPayloads = "slips:pending_event_payloads"
)

// RedisLedger is a Ledger shared by every replica through Redis.
type RedisLedger struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisLedger(client redis.UniversalClient, logger *slog.Logger) *RedisLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLedger{client: client, logger: logger}
}

func (l *RedisLedger) RecordOrphan(ctx context.Context, storageKey string, at time.Time) error {
	// NX keeps the first sighting so the grace period is not reset.
	err := l.client.ZAddNX(ctx, keyOrphans, redis.Z{Score: float64(at.Unix()), Member: storageKey}).Err()
	if err != nil {
		return fmt.Errorf("record orphan: %w", err)
	}
	return nil
}

func (l *RedisLedger) RecordPendingEvent(ctx context.Context, event PendingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode pending event: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyEventPayloads, event.ID, body)
		pipe.ZAdd(ctx, keyPendingEvents, redis.Z{Score: float64(event.RecordedAt.Unix()), Member: event.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record pending event: %w", err)
	}
	return nil
}

func (l *RedisLedger) DueOrphans(ctx context.Context, before time.Time, limit int) ([]Orphan, error) {
	zs, err := l.client.ZRangeByScoreWithScores(ctx, keyOrphans, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(before.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	out := make([]Orphan, 0, len(zs))
	for _, z := range zs {
		key, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, Orphan{StorageKey: key, RecordedAt: time.Unix(int64(z.Score), 0)})
	}
	return out, nil
}

func (l *RedisLedger) PendingEvents(ctx context.Context, limit int) ([]PendingEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := l.client.ZRange(ctx, keyPendingEvents, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	if len(ids) == 0 {
		return []PendingEvent{}, nil
	}
	bodies, err := l.client.HMGet(ctx, keyEventPayloads, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load pending events: %w", err)
	}
	out := make([]PendingEvent, 0, len(ids))
	for i, raw := range bodies {
		s, ok := raw.(string)
		if !ok {
			// Body missing: drop the dangling id so it is not retried forever.
			_ = l.client.ZRem(ctx, keyPendingEvents, ids[i]).Err()
			continue
		}
		var ev PendingEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			// An undecodable body can never be republished; drop it so it does
			// not block the entries behind it.
			l.logger.ErrorContext(ctx, "dropping undecodable pending event", "event_id", ids[i], "error", err)
			if err := l.ForgetPendingEvent(ctx, ids[i]); err != nil {
				l.logger.WarnContext(ctx, "failed to drop pending event", "event_id", ids[i], "error", err)
			}
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (l *RedisLedger) ForgetOrphan(ctx context.Context, storageKey string) error {
	if err := l.client.ZRem(ctx, keyOrphans, storageKey).Err(); err != nil {
		return fmt.Errorf("forget orphan: %w", err)
	}
	return nil
}

func (l *RedisLedger) ForgetPendingEvent(ctx context.Context, id string) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, keyPendingEvents, id)
		pipe.HDel(ctx, keyEventPayloads, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("forget pending event: %w", err)
	}
	return nil
}
