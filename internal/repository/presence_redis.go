package repo

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"okeyonline/internal/domain/presence"
)

const (
	presenceConnsKey   = "presence:conns"
	presenceNamesKey   = "presence:names"
	presenceChannelKey = "presence:channel:"
)

type RedisPresenceStorage struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func NewRedisPresenceStorage(client *redis.Client, log *zap.SugaredLogger) *RedisPresenceStorage {
	return &RedisPresenceStorage{client: client, log: log}
}

// Connect and Disconnect touch the counter and the name in one script so
// tabs of the same user cannot interleave between the two.
var (
	connectScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return n
`)
	disconnectScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n > 0 then
	return n
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 0
`)
)

func (r *RedisPresenceStorage) Connect(ctx context.Context, u presence.OnlineUser) (bool, error) {
	n, err := connectScript.Run(ctx, r.client, []string{presenceConnsKey, presenceNamesKey}, u.UserID, u.Username).Int64()
	if err != nil {
		r.log.Error(err)
		return false, err
	}
	return n == 1, nil
}

func (r *RedisPresenceStorage) Disconnect(ctx context.Context, userID string) (bool, error) {
	n, err := disconnectScript.Run(ctx, r.client, []string{presenceConnsKey, presenceNamesKey}, userID).Int64()
	if err != nil {
		r.log.Error(err)
		return false, err
	}
	return n == 0, nil
}

func (r *RedisPresenceStorage) Online(ctx context.Context) ([]presence.OnlineUser, error) {
	names, err := r.client.HGetAll(ctx, presenceNamesKey).Result()
	if err != nil {
		r.log.Error(err)
		return nil, err
	}
	result := make([]presence.OnlineUser, 0, len(names))
	for id, name := range names {
		result = append(result, presence.OnlineUser{UserID: id, Username: name})
	}
	sortOnline(result)
	return result, nil
}

func (r *RedisPresenceStorage) JoinChannel(ctx context.Context, channel string, u presence.OnlineUser) error {
	return r.client.SAdd(ctx, presenceChannelKey+channel, u.UserID).Err()
}

func (r *RedisPresenceStorage) LeaveChannel(ctx context.Context, channel, userID string) error {
	return r.client.SRem(ctx, presenceChannelKey+channel, userID).Err()
}

func (r *RedisPresenceStorage) ChannelMembers(ctx context.Context, channel string) ([]presence.OnlineUser, error) {
	ids, err := r.client.SMembers(ctx, presenceChannelKey+channel).Result()
	if err != nil {
		r.log.Error(err)
		return nil, err
	}
	result := make([]presence.OnlineUser, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	names, err := r.client.HMGet(ctx, presenceNamesKey, ids...).Result()
	if err != nil {
		r.log.Error(err)
		return nil, err
	}
	for i, id := range ids {
		name, ok := names[i].(string)
		if !ok {
			continue
		}
		result = append(result, presence.OnlineUser{UserID: id, Username: name})
	}
	sortOnline(result)
	return result, nil
}

func sortOnline(users []presence.OnlineUser) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username == users[j].Username {
			return users[i].UserID < users[j].UserID
		}
		return users[i].Username < users[j].Username
	})
}
