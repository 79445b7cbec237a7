package hades

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gridcast/stlf/pkg/domain"
	"github.com/redis/go-redis/v9"
)

const (
	runKeyPrefix    = "stlf:run:"
	runIndexKey     = "stlf:runs"
	uploadKeyPrefix = "stlf:upload:"
	uploadIndexKey  = "stlf:uploads"
	sequenceKey     = "stlf:seq"

	// seqSlots is how many same-millisecond saves keep a distinct order.
	seqSlots = 1000
)

// RedisRegistry stores records as JSON strings and keeps a sorted set per
// record kind for newest-first listing. Scores combine the creation
// millisecond with a save sequence, so records created in the same
// millisecond list in the order they were first saved.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(addr string, db int, password string) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{client: client}, nil
}

// NewRedisRegistryWithClient wraps an existing client.
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// indexScore orders by creation millisecond, then by save sequence.
func indexScore(created time.Time, seq int64) float64 {
	return float64(created.UnixMilli()*seqSlots + seq%seqSlots)
}

func (r *RedisRegistry) save(ctx context.Context, key, index, member string, created time.Time, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	seq, err := r.client.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		// NX keeps the position a record got on its first save.
		pipe.ZAddNX(ctx, index, redis.Z{Score: indexScore(created, seq), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) load(ctx context.Context, key string, notFound error, v any) error {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) SaveUpload(ctx context.Context, upload domain.Upload) error {
	return r.save(ctx, uploadKeyPrefix+string(upload.ID), uploadIndexKey, string(upload.ID), upload.CreatedAt, upload)
}

func (r *RedisRegistry) GetUpload(ctx context.Context, id domain.UploadID) (*domain.Upload, error) {
	var upload domain.Upload
	if err := r.load(ctx, uploadKeyPrefix+string(id), ErrUploadNotFound, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

func (r *RedisRegistry) LatestUpload(ctx context.Context) (*domain.Upload, error) {
	ids, err := r.client.ZRevRange(ctx, uploadIndexKey, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read upload index: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrUploadNotFound
	}
	return r.GetUpload(ctx, domain.UploadID(ids[0]))
}

func (r *RedisRegistry) SaveRun(ctx context.Context, run domain.TrainingRun) error {
	return r.save(ctx, runKeyPrefix+string(run.ID), runIndexKey, string(run.ID), run.CreatedAt, run)
}

func (r *RedisRegistry) GetRun(ctx context.Context, id domain.RunID) (*domain.TrainingRun, error) {
	var run domain.TrainingRun
	if err := r.load(ctx, runKeyPrefix+string(id), ErrRunNotFound, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RedisRegistry) ListRuns(ctx context.Context, limit int) ([]domain.TrainingRun, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, runIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	runs := make([]domain.TrainingRun, 0, len(ids))
	for _, id := range ids {
		run, err := r.GetRun(ctx, domain.RunID(id))
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				continue // Index entry without a record
			}
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (r *RedisRegistry) LatestRun(ctx context.Context) (*domain.TrainingRun, error) {
	ids, err := r.client.ZRevRange(ctx, runIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}
	for _, id := range ids {
		run, err := r.GetRun(ctx, domain.RunID(id))
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				continue
			}
			return nil, err
		}
		if run.Status == domain.RunStatusSucceeded {
			return run, nil
		}
	}
	return nil, ErrRunNotFound
}
