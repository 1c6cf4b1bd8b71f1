package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"prreview/internal/codec"
	"prreview/internal/model"
)

const maxWatchRetries = 10

// Redis stores each job under two keys: {prefix}{id} holds the status and
// {prefix}{id}_result holds the result.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis builds a Redis-backed store. A ttl of zero keeps keys forever;
// otherwise every write refreshes the key's expiry.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) statusKey(id string) string { return r.prefix + id }
func (r *Redis) resultKey(id string) string { return r.prefix + id + "_result" }

// SetStatus writes the status unless the stored one is already terminal.
// The check and the write run in one WATCH/MULTI transaction.
func (r *Redis) SetStatus(ctx context.Context, id string, status model.Status) error {
	data, err := codec.EncodeStatus(status)
	if err != nil {
		return wrap("set status", err)
	}
	key := r.statusKey(id)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			s, err := codec.DecodeStatus(current)
			if err != nil {
				return err
			}
			if s.State.Terminal() {
				return ErrTerminal
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			// The result must not expire before the status that points at it.
			if r.ttl > 0 && status.State == model.StateCompleted {
				pipe.Expire(ctx, r.resultKey(id), r.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return wrap("set status", err)
	}
	return wrap("set status", redis.TxFailedErr)
}

func (r *Redis) GetStatus(ctx context.Context, id string) (model.Status, error) {
	data, err := r.rdb.Get(ctx, r.statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Status{}, ErrNotFound
	}
	if err != nil {
		return model.Status{}, wrap("get status", err)
	}
	s, err := codec.DecodeStatus(data)
	return s, wrap("get status", err)
}

func (r *Redis) SetResult(ctx context.Context, id string, result model.Result) error {
	data, err := codec.EncodeResult(result)
	if err != nil {
		return wrap("set result", err)
	}
	return wrap("set result", r.rdb.Set(ctx, r.resultKey(id), data, r.ttl).Err())
}

func (r *Redis) GetResult(ctx context.Context, id string) (model.Result, error) {
	data, err := r.rdb.Get(ctx, r.resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Result{}, ErrNotFound
	}
	if err != nil {
		return model.Result{}, wrap("get result", err)
	}
	res, err := codec.DecodeResult(data)
	return res, wrap("get result", err)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
