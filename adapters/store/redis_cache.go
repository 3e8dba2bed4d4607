package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/ports"
)

// generationTTL bounds how long an eviction counter outlives its last write.
const generationTTL = 24 * time.Hour

// setIfGeneration writes the entry only when no eviction happened since the
// caller read the generation. A missing generation counts as "0".
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[1])
if not gen then gen = "0" end
if gen ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisCache caches identity lookups for the request path in front of another
// store. All IdentityStore methods go to the inner store; writes evict.
type RedisCache struct {
	ports.IdentityStore
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

var (
	_ ports.IdentityStore  = (*RedisCache)(nil)
	_ ports.IdentityLookup = (*RedisCache)(nil)
)

// NewRedisCache wraps inner with a redis cache.
func NewRedisCache(inner ports.IdentityStore, client redis.Cmdable, ttl time.Duration, logger *logger.Logger) *RedisCache {
	return &RedisCache{
		IdentityStore: inner,
		client:        client,
		prefix:        "assetgate:identity:",
		ttl:           ttl,
		logger:        logger,
	}
}

func (c *RedisCache) key(id string) string {
	return c.prefix + id
}

func (c *RedisCache) generationKey(id string) string {
	return c.prefix + "gen:" + id
}

// cachedIdentity is what goes to redis. Credentials and one-time codes stay
// in the inner store.
type cachedIdentity struct {
	ID                string                 `json:"id"`
	Email             string                 `json:"email,omitempty"`
	WalletAddress     string                 `json:"wallet_address,omitempty"`
	Name              string                 `json:"name,omitempty"`
	Extra             map[string]string      `json:"extra,omitempty"`
	Role              core.Role              `json:"role"`
	EmailVerification core.EmailVerification `json:"email_verification"`
	KYCStatus         core.KYCStatus         `json:"kyc_status"`
	KYCInquiryID      string                 `json:"kyc_inquiry_id,omitempty"`
	LastLoginAt       time.Time              `json:"last_login_at"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func newCachedIdentity(i *core.Identity) cachedIdentity {
	return cachedIdentity{
		ID:                i.ID,
		Email:             i.Email,
		WalletAddress:     i.WalletAddress,
		Name:              i.Name,
		Extra:             i.Extra,
		Role:              i.Role,
		EmailVerification: i.EmailVerification,
		KYCStatus:         i.KYCStatus,
		KYCInquiryID:      i.KYCInquiryID,
		LastLoginAt:       i.LastLoginAt,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

func (ci cachedIdentity) identity() *core.Identity {
	return &core.Identity{
		ID:                ci.ID,
		Email:             ci.Email,
		WalletAddress:     ci.WalletAddress,
		Name:              ci.Name,
		Extra:             ci.Extra,
		Role:              ci.Role,
		EmailVerification: ci.EmailVerification,
		KYCStatus:         ci.KYCStatus,
		KYCInquiryID:      ci.KYCInquiryID,
		LastLoginAt:       ci.LastLoginAt,
		CreatedAt:         ci.CreatedAt,
		UpdatedAt:         ci.UpdatedAt,
	}
}

// LookupIdentity serves from redis when possible and reads through on a miss.
// Results never carry the password hash, reset token or verification code.
// Cache failures fall back to the inner store.
func (c *RedisCache) LookupIdentity(ctx context.Context, id string) (*core.Identity, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var cached cachedIdentity
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached.identity(), nil
		}
		c.logger.Warn("Identity cache: dropping undecodable entry", "id", id)
		c.evict(ctx, id)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Identity cache: read failed", "id", id, "error", err.Error())
	}

	// The generation must be read before the inner load. A write landing in
	// between bumps it and the stale entry is not stored.
	gen, genErr := c.client.Get(ctx, c.generationKey(id)).Result()
	switch {
	case errors.Is(genErr, redis.Nil):
		gen = "0"
	case genErr != nil:
		c.logger.Warn("Identity cache: read failed", "id", id, "error", genErr.Error())
	}

	identity, err := c.IdentityStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cached := newCachedIdentity(identity)
	if genErr == nil || errors.Is(genErr, redis.Nil) {
		payload, err := json.Marshal(cached)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal identity: %w", err)
		}
		keys := []string{c.generationKey(id), c.key(id)}
		if err := setIfGeneration.Run(ctx, c.client, keys, gen, payload, c.ttl.Milliseconds()).Err(); err != nil {
			c.logger.Warn("Identity cache: write failed", "id", id, "error", err.Error())
		}
	}

	return cached.identity(), nil
}

func (c *RedisCache) Create(ctx context.Context, identity *core.Identity) error {
	if err := c.IdentityStore.Create(ctx, identity); err != nil {
		return err
	}
	c.evict(ctx, identity.ID)
	return nil
}

func (c *RedisCache) Save(ctx context.Context, identity *core.Identity) error {
	if err := c.IdentityStore.Save(ctx, identity); err != nil {
		return err
	}
	c.evict(ctx, identity.ID)
	return nil
}

// evict bumps the generation before deleting, so a reader that loaded the old
// row cannot write it back.
func (c *RedisCache) evict(ctx context.Context, id string) {
	if err := c.client.Incr(ctx, c.generationKey(id)).Err(); err != nil {
		c.logger.Warn("Identity cache: eviction failed", "id", id, "error", err.Error())
	}
	if err := c.client.Expire(ctx, c.generationKey(id), generationTTL).Err(); err != nil {
		c.logger.Warn("Identity cache: eviction failed", "id", id, "error", err.Error())
	}
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.logger.Warn("Identity cache: eviction failed", "id", id, "error", err.Error())
	}
}
