package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Сколько раз повторяем транзакцию, если ключ поменяли параллельно.
const redisMaxTxRetries = 10

var errQueueContended = errors.New("queue namespace is contended, too many retries")

// RedisQueueRepository хранит весь неймспейс одним ключом: JSON-массивом записей.
// Это та форма, которую читают и пишут все остальные потребители неймспейса.
type RedisQueueRepository struct {
	client *redis.Client
	key    string
}

func NewRedisQueueRepository(client *redis.Client, namespace string) *RedisQueueRepository {
	if namespace == "" {
		namespace = model.DefaultQueueNamespace
	}
	return &RedisQueueRepository{client: client, key: namespace}
}

func (r *RedisQueueRepository) Insert(ctx context.Context, rec model.BookingRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal booking %s: %w", rec.BookingReference, err)
	}
	return r.mutate(ctx, func(entries []json.RawMessage) ([]json.RawMessage, error) {
		return append(entries, raw), nil
	})
}

func (r *RedisQueueRepository) Update(ctx context.Context, rec model.BookingRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal booking %s: %w", rec.BookingReference, err)
	}
	queueID := rec.QueueID()
	return r.mutate(ctx, func(entries []json.RawMessage) ([]json.RawMessage, error) {
		i := indexOfEntry(entries, queueID)
		if i < 0 {
			return nil, ErrQueuedNotFound
		}
		entries[i] = raw
		return entries, nil
	})
}

func (r *RedisQueueRepository) List(ctx context.Context) ([]model.BookingRecord, []error, error) {
	entries, err := r.load(ctx, r.client)
	if err != nil {
		return nil, nil, err
	}

	var (
		records = make([]model.BookingRecord, 0, len(entries))
		corrupt []error
	)
	for i, raw := range entries {
		rec, err := decodeEntry(raw)
		if err != nil {
			corrupt = append(corrupt, fmt.Errorf("%s[%d]: %w", r.key, i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, corrupt, nil
}

func (r *RedisQueueRepository) MarkSynced(ctx context.Context, queueID, assignedID string, at time.Time) error {
	return r.mutate(ctx, func(entries []json.RawMessage) ([]json.RawMessage, error) {
		i := indexOfEntry(entries, queueID)
		if i < 0 {
			return nil, ErrQueuedNotFound
		}
		rec, err := decodeEntry(entries[i])
		if err != nil {
			return nil, err
		}
		rec.LocalID = queueID
		rec.ID = assignedID
		rec.Origin = model.OriginLocalSynced
		rec.UpdatedAt = at

		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal booking %s: %w", rec.BookingReference, err)
		}
		entries[i] = raw
		return entries, nil
	})
}

func (r *RedisQueueRepository) Delete(ctx context.Context, queueID string) error {
	return r.mutate(ctx, func(entries []json.RawMessage) ([]json.RawMessage, error) {
		i := indexOfEntry(entries, queueID)
		if i < 0 {
			return entries, nil
		}
		return append(entries[:i], entries[i+1:]...), nil
	})
}

// mutate — read-modify-write всего массива под WATCH.
// Нераспознанные элементы переносятся как есть: мы их не понимаем, но и не теряем.
func (r *RedisQueueRepository) mutate(
	ctx context.Context,
	fn func(entries []json.RawMessage) ([]json.RawMessage, error),
) error {
	txf := func(tx *redis.Tx) error {
		entries, err := r.load(ctx, tx)
		if err != nil {
			return err
		}
		next, err := fn(entries)
		if err != nil {
			return err
		}
		if next == nil {
			next = []json.RawMessage{}
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal queue %s: %w", r.key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errQueueContended
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisQueueRepository) load(ctx context.Context, c redisGetter) ([]json.RawMessage, error) {
	raw, err := c.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue %s: %w", r.key, err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("queue %s is not a json array: %w", r.key, err)
	}
	return entries, nil
}

func decodeEntry(raw json.RawMessage) (model.BookingRecord, error) {
	if err := model.ValidateJSON(raw); err != nil {
		return model.BookingRecord{}, err
	}
	var rec model.BookingRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.BookingRecord{}, err
	}
	if rec.LocalID == "" {
		rec.LocalID = rec.ID
	}
	return rec, nil
}

func indexOfEntry(entries []json.RawMessage, queueID string) int {
	for i, raw := range entries {
		var key struct {
			ID      string `json:"id"`
			LocalID string `json:"localId"`
		}
		if err := json.Unmarshal(raw, &key); err != nil {
			continue
		}
		if key.LocalID == queueID || (key.LocalID == "" && key.ID == queueID) {
			return i
		}
	}
	return -1
}
