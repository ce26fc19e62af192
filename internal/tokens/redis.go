package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tempshare:dl-token:"

// RedisStore — токены в Redis, общие для всех экземпляров сервиса.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создаёт хранилище поверх клиента Redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient создаёт клиент Redis и проверяет подключение.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", addr, err)
	}
	return client, nil
}

// Put сохраняет токен через SET с EX.
func (s *RedisStore) Put(ctx context.Context, token string, grant Grant, ttl time.Duration) error {
	data, err := json.Marshal(grant)
	if err != nil {
		observe("put", err)
		return fmt.Errorf("ошибка сериализации токена: %w", err)
	}
	err = s.client.Set(ctx, redisKeyPrefix+token, data, ttl).Err()
	observe("put", err)
	if err != nil {
		return fmt.Errorf("ошибка записи токена в Redis: %w", err)
	}
	return nil
}

// TakeOnce извлекает токен через GETDEL.
func (s *RedisStore) TakeOnce(ctx context.Context, token string) (Grant, error) {
	data, err := s.client.GetDel(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observe("take", ErrNotFound)
			return Grant{}, ErrNotFound
		}
		observe("take", err)
		return Grant{}, fmt.Errorf("ошибка чтения токена из Redis: %w", err)
	}

	var grant Grant
	if err := json.Unmarshal(data, &grant); err != nil {
		observe("take", err)
		return Grant{}, fmt.Errorf("повреждённый токен в Redis: %w", err)
	}
	observe("take", nil)
	return grant, nil
}
