package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey    = "online_users"
	lastSeenKeyTmpl = "lastseen:"
)

// RedisStore keeps the derived presence state readable by the rest of the
// platform: a set of online user IDs plus per-user lastSeen timestamps.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	return s.rdb.SAdd(ctx, onlineSetKey, userID).Err()
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, onlineSetKey, userID)
	pipe.Set(ctx, lastSeenKeyTmpl+userID, lastSeen.UTC().Format(time.RFC3339), 0)
	_, err := pipe.Exec(ctx)
	return err
}

// OnlineUsers lists every user ID currently marked online.
func (s *RedisStore) OnlineUsers(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, onlineSetKey).Result()
}

// LastSeen returns the recorded lastSeen for a user. The zero time means the
// user has never been seen going offline.
func (s *RedisStore) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := s.rdb.Get(ctx, lastSeenKeyTmpl+userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, val)
}

// IsOnline checks membership in the online set.
func (s *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	return s.rdb.SIsMember(ctx, onlineSetKey, userID).Result()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
