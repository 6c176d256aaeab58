package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld 表示会话已有一轮对话正在进行。
var ErrLockHeld = errors.New("conversation turn already in progress")

// 只释放自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TurnLock 保证同一会话同一时刻只有一轮对话在处理。
type TurnLock interface {
	Acquire(ctx context.Context, conversationID uint, ttl time.Duration) (release func(), err error)
}

type redisTurnLock struct {
	redisClient *redis.Client
}

// NewTurnLock 创建一个基于 Redis SETNX 的 TurnLock。
func NewTurnLock(redisClient *redis.Client) TurnLock {
	return &redisTurnLock{redisClient: redisClient}
}

func (l *redisTurnLock) Acquire(ctx context.Context, conversationID uint, ttl time.Duration) (func(), error) {
	key := fmt.Sprintf("conversation:%d:turn_lock", conversationID)
	owner := uuid.NewString()
	ok, err := l.redisClient.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire turn lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = releaseScript.Run(context.Background(), l.redisClient, []string{key}, owner).Err()
	}, nil
}
