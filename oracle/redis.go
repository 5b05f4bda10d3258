package oracle

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// redisCmdable is the slice of redis.Cmdable that Lookup actually drives.
// Redis holds this interface rather than a concrete *redis.Client so tests
// can exercise the key/set/both mode dispatch against a fake, without a
// live Redis server.
type redisCmdable interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	Close() error
}

// Redis is the production Recipient Oracle, backed by an external Redis
// (or Redis-compatible) key/value store. Grounded on the Redis-backed SMTP
// server in the retrieval pack (RathodViraj-simple-smtp), which drives the
// same github.com/redis/go-redis/v9 client against per-user keys.
type Redis struct {
	client     redisCmdable
	keyPattern string
	setName    string
	mode       Mode
}

// RedisOption configures NewRedis's underlying connection.
type RedisOption struct {
	URL      string
	Host     string
	Port     string
	Username string
	Password string
}

// NewRedis builds a Redis-backed Oracle. If opt.URL is set it takes
// precedence (parsed with redis.ParseURL); otherwise Host/Port/Username/
// Password build the connection directly, matching spec.md §6's
// REDIS_URL-or-discrete-vars configuration.
func NewRedis(opt RedisOption, keyPattern, setName string, mode Mode) (*Redis, error) {
	var redisOpts *redis.Options
	if opt.URL != "" {
		parsed, err := redis.ParseURL(opt.URL)
		if err != nil {
			return nil, err
		}
		redisOpts = parsed
	} else {
		addr := opt.Host
		if addr == "" {
			addr = "127.0.0.1"
		}
		port := opt.Port
		if port == "" {
			port = "6379"
		}
		redisOpts = &redis.Options{
			Addr:     addr + ":" + port,
			Username: opt.Username,
			Password: opt.Password,
		}
	}

	return &Redis{
		client:     redis.NewClient(redisOpts),
		keyPattern: keyPattern,
		setName:    setName,
		mode:       mode,
	}, nil
}

// Lookup implements Oracle. Mode dispatch and failure mapping follow
// spec.md §4.2 exactly: key tier first in "both" mode, any transport error
// maps to Unavailable, and a tier left disabled (empty string) is skipped
// in "both" mode. In "key" or "set" mode a disabled tier yields
// Unavailable, as does "both" mode with both tiers disabled.
func (o *Redis) Lookup(ctx context.Context, address string) Result {
	keyEnabled := o.keyPattern != ""
	setEnabled := o.setName != ""

	if !keyEnabled && !setEnabled {
		return Unavailable
	}

	switch o.mode {
	case ModeKey:
		if !keyEnabled {
			return Unavailable
		}
		return o.lookupKey(ctx, address)

	case ModeSet:
		if !setEnabled {
			return Unavailable
		}
		return o.lookupSet(ctx, address)

	case ModeBoth:
		if keyEnabled {
			res := o.lookupKey(ctx, address)
			if res == Exists || res == Unavailable {
				return res
			}
		}
		if setEnabled {
			return o.lookupSet(ctx, address)
		}
		return NotFound

	default:
		return Unavailable
	}
}

func (o *Redis) lookupKey(ctx context.Context, address string) Result {
	key := keyForAddress(o.keyPattern, address)
	n, err := o.client.Exists(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NotFound
		}
		return Unavailable
	}
	if n > 0 {
		return Exists
	}
	return NotFound
}

func (o *Redis) lookupSet(ctx context.Context, address string) Result {
	ok, err := o.client.SIsMember(ctx, o.setName, address).Result()
	if err != nil {
		return Unavailable
	}
	if ok {
		return Exists
	}
	return NotFound
}

// Close releases the underlying Redis client's connections.
func (o *Redis) Close() error {
	return o.client.Close()
}
