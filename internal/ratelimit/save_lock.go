package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Release only deletes the key when the caller still holds it, so an
// expired lock picked up by another save is never released from under it.
const saveLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SaveLock serializes saves of a single plan. Acquire stores a random token
// under plan:save:<org>:<plan> with a TTL so a crashed holder cannot wedge
// the plan; the token comes back to the caller and is required to release.
type SaveLock struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewSaveLock(client *redis.Client, ttl time.Duration) *SaveLock {
	if client == nil {
		return nil
	}
	return &SaveLock{
		client: client,
		script: redis.NewScript(saveLockReleaseScript),
		ttl:    ttl,
	}
}

func (l *SaveLock) key(orgID, planID string) string {
	return fmt.Sprintf("plan:save:%s:%s", strings.TrimSpace(orgID), strings.TrimSpace(planID))
}

// Acquire takes the save lock for one plan. It returns the release token
// and whether the lock was won; a lost race is not an error.
func (l *SaveLock) Acquire(ctx context.Context, orgID, planID string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("save lock client not configured")
	}
	if strings.TrimSpace(orgID) == "" || strings.TrimSpace(planID) == "" {
		return "", false, errors.New("save lock requires org and plan ids")
	}
	if l.ttl <= 0 {
		return "", false, errors.New("save lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(orgID, planID), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the plan's save lock if token still owns it. Releasing an
// expired or foreign lock is a no-op.
func (l *SaveLock) Release(ctx context.Context, orgID, planID, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.key(orgID, planID)}, token).Err()
}
