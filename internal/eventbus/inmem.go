package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InMemoryBus はテスト用の同期インメモリ実装。
// Publishは登録済みの全Dispatcherへその場で配送する。ハンドラのエラーは
// 収集され、FailedDeliveriesで参照できる。
type InMemoryBus struct {
	mu          sync.Mutex
	dispatchers []*Dispatcher
	published   []PublishedEvent
	failed      []PublishedEvent
}

// PublishedEvent は発行済みイベントの記録。
type PublishedEvent struct {
	RoutingKey string
	Body       []byte
}

var _ Publisher = (*InMemoryBus)(nil)

// NewInMemoryBus はInMemoryBusを生成する。
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Attach はDispatcherを配送先として登録する。
func (b *InMemoryBus) Attach(d *Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatchers = append(b.dispatchers, d)
}

// Publish はペイロードをJSONにして全Dispatcherへ同期配送する。
func (b *InMemoryBus) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗しました: %w", err)
	}

	b.mu.Lock()
	b.published = append(b.published, PublishedEvent{RoutingKey: routingKey, Body: body})
	dispatchers := make([]*Dispatcher, len(b.dispatchers))
	copy(dispatchers, b.dispatchers)
	b.mu.Unlock()

	for _, d := range dispatchers {
		if err := d.Dispatch(ctx, routingKey, body); err != nil {
			b.mu.Lock()
			b.failed = append(b.failed, PublishedEvent{RoutingKey: routingKey, Body: body})
			b.mu.Unlock()
		}
	}
	return nil
}

// Published は発行済みイベントのスナップショットを返す。
func (b *InMemoryBus) Published() []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedEvent, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedWithKey は指定ルーティングキーの発行済みイベントを返す。
func (b *InMemoryBus) PublishedWithKey(routingKey string) []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []PublishedEvent
	for _, e := range b.published {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}

// FailedDeliveries はハンドラがエラーを返した配送の記録を返す。
func (b *InMemoryBus) FailedDeliveries() []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedEvent, len(b.failed))
	copy(out, b.failed)
	return out
}
