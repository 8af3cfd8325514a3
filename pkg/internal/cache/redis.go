package cache

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

var Rd *redis.Client

func NewCache() error {
	Rd = redis.NewClient(&redis.Options{
		Addr:     viper.GetString("cache.addr"),
		Password: viper.GetString("cache.password"),
		DB:       viper.GetInt("cache.db"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return Rd.Ping(ctx).Err()
}

// Set stores a JSON encoded value with a TTL.
func Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	return Rd.Set(ctx, key, raw, ttl).Err()
}

// Get loads a JSON encoded value; redis.Nil is returned on a miss.
func Get(ctx context.Context, key string, out any) error {
	raw, err := Rd.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal([]byte(raw), out)
}

func Delete(ctx context.Context, key string) error {
	return Rd.Del(ctx, key).Err()
}
