// Package cache содержит кеш-хранилища для сквозного чтения заявок.
package cache

import (
	"context"
	"time"
)

// Store описывает контракт кеш-хранилища.
// Кеш носит вспомогательный характер и не является источником истины:
// потеря записей прозрачно компенсируется чтением из репозитория.
type Store interface {
	// Get возвращает значение по ключу. Промах кеша — (nil, nil).
	Get(ctx context.Context, key string) ([]byte, error)
	// Set сохраняет значение с указанным временем жизни.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete синхронно удаляет записи по ключам.
	Delete(ctx context.Context, keys ...string) error
}
