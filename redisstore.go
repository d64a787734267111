package quizrunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quizrunner:session:"

// RedisOptions configures the connection of a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps quiz sessions in Redis so several server instances can share them.
// Expiry is handled by Redis through key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Create stores quiz under handle unless the key already exists
func (s *RedisStore) Create(ctx context.Context, handle string, quiz *Quiz) error {
	state, err := encodeQuiz(quiz)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+handle, state, s.expiration()).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, handle)
	}
	return nil
}

// Get loads the quiz stored under handle
func (s *RedisStore) Get(ctx context.Context, handle string) (*Quiz, error) {
	state, err := s.client.Get(ctx, redisKeyPrefix+handle).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeQuiz(state)
}

// Save overwrites an existing key and refreshes its TTL
func (s *RedisStore) Save(ctx context.Context, handle string, quiz *Quiz) error {
	state, err := encodeQuiz(quiz)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, redisKeyPrefix+handle, state, s.expiration()).Result()
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	return nil
}

// Remove deletes the key; deleting a missing key is not an error
func (s *RedisStore) Remove(ctx context.Context, handle string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+handle).Err(); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func (s *RedisStore) expiration() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	return s.ttl
}
