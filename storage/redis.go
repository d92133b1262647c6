package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/johnwmail/pastebin/models"
)

// incrementViewsLua reads, bumps views and writes back in one server-side
// step. Undecodable records are reported as absent. Only the views field is
// rewritten since cjson would re-encode large timestamps in exponent form.
const incrementViewsLua = `
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
local ok, rec = pcall(cjson.decode, raw)
if not ok or type(rec) ~= 'table' then
  return false
end
local views = (tonumber(rec['views']) or 0) + 1
local out, n = string.gsub(raw, '"views":%-?%d+', '"views":' .. string.format('%d', views), 1)
if n == 0 then
  return false
end
redis.call('SET', KEYS[1], out, 'KEEPTTL')
return out
`

// RedisOptions configures the Redis backend. URL wins over Addr.
type RedisOptions struct {
	URL      string
	Addr     string
	Password string
	DB       int

	// NonAtomicFallback permits a GET+SET increment when the server refuses
	// to run scripts. Concurrent consumers may then overshoot max_views.
	NonAtomicFallback bool

	// OnDegraded is called once per non-atomic increment.
	OnDegraded func()
}

// RedisStore implements PasteStore on a Redis key space.
type RedisStore struct {
	client   redis.UniversalClient
	script   *redis.Script
	fallback bool
	degraded func()
	logger   *slog.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	var clientOpts *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("redis store: parse url: %w", err)
		}
		clientOpts = parsed
	} else {
		if opts.Addr == "" {
			return nil, errors.New("redis store: url or addr is required")
		}
		clientOpts = &redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
	}

	store := newRedisStoreFromClient(redis.NewClient(clientOpts), opts, logger)
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("redis store: %w", err)
	}
	return store, nil
}

func newRedisStoreFromClient(client redis.UniversalClient, opts RedisOptions, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client:   client,
		script:   redis.NewScript(incrementViewsLua),
		fallback: opts.NonAtomicFallback,
		degraded: opts.OnDegraded,
		logger:   loggerOrDefault(logger),
	}
}

func (r *RedisStore) Put(ctx context.Context, id string, paste *models.Paste) error {
	data, err := encodePaste(paste)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, Key(id), data, storageLifetime(paste)).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	raw, err := r.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeOrAbsent(r.logger, "redis", id, raw), nil
}

func (r *RedisStore) IncrementViews(ctx context.Context, id string) (*models.Paste, error) {
	raw, err := r.script.Run(ctx, r.client, []string{Key(id)}).Text()
	switch {
	case err == nil:
		return decodeOrAbsent(r.logger, "redis", id, []byte(raw)), nil
	case errors.Is(err, redis.Nil):
		return nil, nil
	case r.fallback && scriptingUnavailable(err):
		return r.incrementNonAtomic(ctx, id, err)
	default:
		return nil, err
	}
}

// incrementNonAtomic is the degraded path. It can lose increments under
// concurrency and is only reachable when explicitly enabled.
func (r *RedisStore) incrementNonAtomic(ctx context.Context, id string, cause error) (*models.Paste, error) {
	r.logger.Warn("redis scripting unavailable, using non-atomic view increment", "id", id, "error", cause)
	if r.degraded != nil {
		r.degraded()
	}

	key := Key(id)
	paste, err := r.Get(ctx, id)
	if err != nil || paste == nil {
		return nil, err
	}
	paste.Views++
	data, err := encodePaste(paste)
	if err != nil {
		return nil, err
	}
	if err := r.client.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return nil, err
	}
	return paste, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// scriptingUnavailable recognises server replies that mean EVAL itself is
// refused, as opposed to a failure inside the script.
func scriptingUnavailable(err error) bool {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return false
	}
	msg := strings.ToLower(rerr.Error())
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "scripting is disabled") ||
		strings.Contains(msg, "noperm")
}
