//go:build integration

// Package containers starts the PostgreSQL, Redis and Kafka instances the
// integration suites run against. Each is started once per test binary.
package containers

import (
	"sync"
	"testing"
)

// lazy starts a container on first use and hands out the same one afterwards.
type lazy[T any] struct {
	mu    sync.Mutex
	value *T
	start func(t *testing.T) *T
}

func (l *lazy[T]) get(t *testing.T) *T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value == nil {
		l.value = l.start(t)
	}
	return l.value
}

// Manager hands out the shared containers.
type Manager struct {
	postgres lazy[PostgresContainer]
	redis    lazy[RedisContainer]
	kafka    lazy[KafkaContainer]
}

var manager = sync.OnceValue(func() *Manager {
	return &Manager{
		postgres: lazy[PostgresContainer]{start: NewPostgresContainer},
		redis:    lazy[RedisContainer]{start: NewRedisContainer},
		kafka:    lazy[KafkaContainer]{start: NewKafkaContainer},
	}
})

// GetManager returns the process-wide Manager.
func GetManager() *Manager { return manager() }

// GetPostgres returns a migrated PostgreSQL container.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t)
}

// GetRedis returns a Redis container with a connected client.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t)
}

// GetKafka returns a single-node Kafka container.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t)
}
