// Package eventbus はサービス間イベントの発行・購読の基盤を提供する。
// 本番実装はRabbitMQのトピック交換(amqp.go)、テスト用に同期インメモリ実装
// (inmem.go)を持つ。
package eventbus

import (
	"context"
	"log/slog"
)

// Publisher はルーティングキーつきでイベントを発行する。
// payloadはJSONへシリアライズされて送信される。
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// HandlerFunc は受信イベント1件を処理する。
// エラーを返した場合、メッセージは再配送されずデッドレターへ送られる。
type HandlerFunc func(ctx context.Context, body []byte) error

// Dispatcher はルーティングキーからハンドラへの振り分け表。
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register はルーティングキーに対するハンドラを登録する。
func (d *Dispatcher) Register(routingKey string, h HandlerFunc) {
	d.handlers[routingKey] = h
}

// Bindings は登録済みの全ルーティングキーを返す。キューのバインドに使う。
func (d *Dispatcher) Bindings() []string {
	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	return keys
}

// Dispatch はルーティングキーに対応するハンドラを呼び出す。
// 未登録のキーは警告ログを出して正常終了扱いにする（ackされ再配送されない）。
func (d *Dispatcher) Dispatch(ctx context.Context, routingKey string, body []byte) error {
	h, ok := d.handlers[routingKey]
	if !ok {
		d.logger.Warn("ハンドラ未登録のイベントを受信しました。破棄します",
			slog.String("routing_key", routingKey))
		return nil
	}
	return h(ctx, body)
}
