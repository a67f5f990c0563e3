package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records as JSON strings and allocates ids with INCR.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisStore returns a store; ttl <= 0 keeps records indefinitely.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func keySeq() string               { return "ttt:session:seq" }
func keySession(id int64) string   { return "ttt:session:" + strconv.FormatInt(id, 10) }
func keyToken(token string) string { return "ttt:token:" + strings.TrimSpace(token) }
func keyUser(userID string) string { return "ttt:user:" + strings.TrimSpace(userID) }

func (s *RedisStore) AllocateID(ctx context.Context) (int64, error) {
	return s.rdb.Incr(ctx, keySeq()).Result()
}

func (s *RedisStore) Get(ctx context.Context, id int64) (*Record, error) {
	raw, err := s.rdb.Get(ctx, keySession(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put overwrites the record. With a ttl the join token's expiry is refreshed with it,
// so an active session never loses its shareable code.
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if s.ttl == 0 || rec.JoinToken == "" {
		return s.rdb.Set(ctx, keySession(rec.ID), raw, 0).Err()
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keySession(rec.ID), raw, s.ttl)
		p.Expire(ctx, keyToken(rec.JoinToken), s.ttl)
		return nil
	})
	return err
}

const maxMessageIDRetries = 3

func (s *RedisStore) UpdateMessageIDs(ctx context.Context, id int64, updates []MessageIDUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	key := keySession(id)
	for attempt := 0; attempt < maxMessageIDRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if !applyMessageIDs(&rec, updates) {
				return nil
			}
			out, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, out, s.ttl)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (s *RedisStore) ReserveToken(ctx context.Context, token string, id int64) (bool, error) {
	return s.rdb.SetNX(ctx, keyToken(token), id, s.ttl).Result()
}

func (s *RedisStore) ResolveToken(ctx context.Context, token string) (int64, bool, error) {
	id, err := s.rdb.Get(ctx, keyToken(token)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// RedisUserIndex stores user → session pointers as plain integer strings.
type RedisUserIndex struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisUserIndex(rdb redis.UniversalClient, ttl time.Duration) *RedisUserIndex {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisUserIndex{rdb: rdb, ttl: ttl}
}

func (x *RedisUserIndex) Current(ctx context.Context, userID string) (int64, bool, error) {
	id, err := x.rdb.Get(ctx, keyUser(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (x *RedisUserIndex) Bind(ctx context.Context, userID string, id int64) error {
	return x.rdb.Set(ctx, keyUser(userID), id, x.ttl).Err()
}

func (x *RedisUserIndex) Unbind(ctx context.Context, userID string) error {
	return x.rdb.Del(ctx, keyUser(userID)).Err()
}
