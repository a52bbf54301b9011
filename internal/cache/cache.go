// Package cache содержит кэш снимков сертификатов на основе Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkravets/traincenter-system/internal/model"
)

const snapshotTTL = 10 * time.Minute

// Cache кэширует снимки сертификатов для публичной проверки по коду.
// Нулевой указатель безопасен: все методы работают как no-op, сервис
// полностью функционален без Redis.
type Cache struct {
	client *redis.Client
}

// New создаёт кэш поверх Redis по указанному адресу. Пустой адрес отключает кэш.
func New(addr string) *Cache {
	if addr == "" {
		return nil
	}

	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func snapshotKey(code string) string {
	return "certificate:snapshot:" + code
}

// GetSnapshot возвращает закэшированный снимок сертификата или nil при промахе.
func (c *Cache) GetSnapshot(ctx context.Context, code string) *model.CertificateSnapshot {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, snapshotKey(code)).Bytes()
	if err != nil {
		return nil
	}

	var snap model.CertificateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}

	return &snap
}

// SetSnapshot сохраняет снимок сертификата. Ошибки кэша не влияют на проверку.
func (c *Cache) SetSnapshot(ctx context.Context, snap *model.CertificateSnapshot) {
	if c == nil || snap == nil {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}

	_ = c.client.Set(ctx, snapshotKey(snap.Code), data, snapshotTTL).Err()
}

// Invalidate удаляет снимок из кэша после изменения флага verified.
func (c *Cache) Invalidate(ctx context.Context, code string) {
	if c == nil {
		return
	}

	_ = c.client.Del(ctx, snapshotKey(code)).Err()
}
