package redisscope

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/session"
)

const keyPrefix = "scope:"

// Store persists tenant selections in redis so they survive gateway restarts
// and are shared across replicas. Entries carry no TTL: a selection stays
// valid until the user switches company or logs out.
type Store struct {
	rdb *redis.Client
}

var _ session.ScopeStore = (*Store)(nil)

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Open connects a client from config and pings it.
func Open(conf *core.Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return New(rdb), nil
}

func (s *Store) Get(ctx context.Context, userKey string) (string, bool, error) {
	id, err := s.rdb.Get(ctx, keyPrefix+userKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "reading tenant scope")
	}
	return id, true, nil
}

func (s *Store) Set(ctx context.Context, userKey, companyID string) error {
	return errors.Wrap(s.rdb.Set(ctx, keyPrefix+userKey, companyID, 0).Err(), "writing tenant scope")
}

func (s *Store) Clear(ctx context.Context, userKey string) error {
	return errors.Wrap(s.rdb.Del(ctx, keyPrefix+userKey).Err(), "clearing tenant scope")
}
