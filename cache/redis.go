package cache

import (
	"context"
	"sort"
	"time"

	"health-alert-inference/models"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const historyKeyPrefix = "history:"

type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	MaxEntries int
	TTL        time.Duration
}

// RedisClient stores each patient's history as a hash of date -> JSON sample.
type RedisClient struct {
	client     *redis.Client
	maxEntries int
	ttl        time.Duration
}

func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis at %s", opts.Addr)
	}

	return newRedisClient(rdb, opts), nil
}

func newRedisClient(rdb *redis.Client, opts RedisOptions) *RedisClient {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &RedisClient{
		client:     rdb,
		maxEntries: maxEntries,
		ttl:        opts.TTL,
	}
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisClient) Append(ctx context.Context, sample models.TelemetrySample) error {
	key := historyKeyPrefix + sample.PatientID

	data, err := json.Marshal(sample)
	if err != nil {
		return errors.Wrap(err, "encode sample")
	}

	_, err = rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sample.Date, data)
		if rc.ttl > 0 {
			pipe.Expire(ctx, key, rc.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "store history for patient %s", sample.PatientID)
	}

	return rc.trim(ctx, key)
}

// trim drops the oldest dates once the hash grows past maxEntries.
func (rc *RedisClient) trim(ctx context.Context, key string) error {
	n, err := rc.client.HLen(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "count history")
	}
	if int(n) <= rc.maxEntries {
		return nil
	}

	dates, err := rc.client.HKeys(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "list history dates")
	}
	sort.Strings(dates)
	stale := dates[:len(dates)-rc.maxEntries]
	return errors.Wrap(rc.client.HDel(ctx, key, stale...).Err(), "trim history")
}

func (rc *RedisClient) Recent(ctx context.Context, patientID, before string, n int) ([]models.TelemetrySample, error) {
	key := historyKeyPrefix + patientID

	vals, err := rc.client.HGetAll(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load history for patient %s", patientID)
	}

	samples := make([]models.TelemetrySample, 0, len(vals))
	for date, val := range vals {
		if !dateBefore(date, before) {
			continue
		}
		var s models.TelemetrySample
		if err := json.Unmarshal([]byte(val), &s); err != nil {
			return nil, errors.Wrapf(err, "decode history entry %s/%s", patientID, date)
		}
		samples = append(samples, s)
	}
	return latest(samples, n), nil
}
