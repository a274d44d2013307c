package signals

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hail-core/internal/models"
)

// RedisStore implements Store on Redis: GEOADD for map display tooling plus
// a hash of JSON payloads the snapshot reads back. TTL enforcement proper is
// the platform's job; Snapshot prunes entries it observes to be expired.
type RedisStore struct {
	client  *redis.Client
	geoKey  string
	hashKey string
}

func NewRedisStore(addr, password, geoKey string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, geoKey: geoKey, hashKey: geoKey + ":payload"}
}

func (r *RedisStore) Upsert(ctx context.Context, s models.GeoSignal) error {
	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{Longitude: s.Origin.Lon, Latitude: s.Origin.Lat, Name: s.ID}).Result(); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.hashKey, s.ID, string(b)).Err()
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]models.GeoSignal, error) {
	raw, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, err
	}
	now := timeNow()
	out := make([]models.GeoSignal, 0, len(raw))
	var dead []string
	for id, v := range raw {
		var s models.GeoSignal
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			// unknown shapes are rejected, not trusted
			dead = append(dead, id)
			continue
		}
		if s.Expired(now) {
			dead = append(dead, id)
			continue
		}
		out = append(out, s)
	}
	if len(dead) > 0 {
		// best-effort prune; the snapshot is already clean either way
		_ = r.client.HDel(ctx, r.hashKey, dead...).Err()
		_ = r.client.ZRem(ctx, r.geoKey, toAny(dead)...).Err()
	}
	orderSnapshot(out)
	return out, nil
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.client.Close() }

func toAny(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
