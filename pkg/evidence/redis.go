package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisSink keeps a run's entries in a redis list, oldest first.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink connects lazily; the first Write surfaces connection errors.
func NewRedisSink(addr, password, key string) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return &RedisSink{client: client, key: key}
}

func (s *RedisSink) Write(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.key, b).Err()
}

func (s *RedisSink) Load(ctx context.Context) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for i, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decoding %s[%d]: %w", s.key, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
