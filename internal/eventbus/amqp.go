package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/konecta/erp/internal/metrics"
)

// AMQPBus はRabbitMQのトピック交換に対する発行・購読の実装。
// 交換は耐久(durable)で宣言し、処理失敗メッセージは再配送せず
// デッドレター交換(<exchange>.dlx)へ退避する。
type AMQPBus struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	exchange  string
	logger    *slog.Logger
	collector *metrics.Collector
}

var _ Publisher = (*AMQPBus)(nil)

// NewAMQPBus はブローカーへ接続し、交換とデッドレター交換を宣言する。
func NewAMQPBus(url, exchange string, logger *slog.Logger, collector *metrics.Collector) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("メッセージブローカーへの接続に失敗しました: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("チャネルのオープンに失敗しました: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("交換 %s の宣言に失敗しました: %w", exchange, err)
	}

	// デッドレター基盤。処理失敗メッセージの最終退避先。
	dlx := exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("デッドレター交換 %s の宣言に失敗しました: %w", dlx, err)
	}
	parking, err := ch.QueueDeclare(dlx+".parking", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("デッドレターキューの宣言に失敗しました: %w", err)
	}
	if err := ch.QueueBind(parking.Name, "", dlx, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("デッドレターキューのバインドに失敗しました: %w", err)
	}

	return &AMQPBus{
		conn:      conn,
		channel:   ch,
		exchange:  exchange,
		logger:    logger,
		collector: collector,
	}, nil
}

// Publish はペイロードをJSONにして永続化フラグつきで発行する。
func (b *AMQPBus) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗しました: %w", err)
	}

	err = b.channel.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("イベント %s の発行に失敗しました: %w", routingKey, err)
	}

	b.collector.EventPublished(routingKey)
	b.logger.Info("イベントを発行しました",
		slog.String("routing_key", routingKey),
		slog.Int("bytes", len(body)))
	return nil
}

// Subscribe はキューを宣言してdispatcherの全ルーティングキーをバインドし、
// バックグラウンドで消費ループを開始する。宣言・バインド・消費開始の失敗は
// 同期的にエラーで返し、成功後は即座に制御を返す。
// prefetchは1で、ハンドラ完了後に手動ackする。ハンドラがエラーを返した
// メッセージは requeue せず nack し、デッドレター交換へ送る。
// 消費ループはctxのキャンセルまたはチャネルのクローズで停止する。
func (b *AMQPBus) Subscribe(ctx context.Context, queueName string, dispatcher *Dispatcher) error {
	args := amqp.Table{"x-dead-letter-exchange": b.exchange + ".dlx"}
	queue, err := b.channel.QueueDeclare(queueName, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("キュー %s の宣言に失敗しました: %w", queueName, err)
	}

	for _, key := range dispatcher.Bindings() {
		if err := b.channel.QueueBind(queue.Name, key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("キュー %s のバインド(%s)に失敗しました: %w", queueName, key, err)
		}
	}

	// 1件ずつ処理する。ack前に次のメッセージは配送されない。
	if err := b.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("QoSの設定に失敗しました: %w", err)
	}

	deliveries, err := b.channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("キュー %s の消費開始に失敗しました: %w", queueName, err)
	}

	b.logger.Info("イベントの購読を開始します",
		slog.String("queue", queueName),
		slog.Int("bindings", len(dispatcher.Bindings())))

	go func() {
		if err := b.consume(ctx, deliveries, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("イベント購読が停止しました",
				slog.String("queue", queueName),
				slog.String("error", err.Error()))
		}
	}()

	return nil
}

// consume は配送チャネルを1件ずつ処理する消費ループ。
// ctxのキャンセルまたは配送チャネルのクローズで戻る。
func (b *AMQPBus) consume(ctx context.Context, deliveries <-chan amqp.Delivery, dispatcher *Dispatcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("配送チャネルがクローズされました")
			}
			b.handleDelivery(ctx, d, dispatcher)
		}
	}
}

func (b *AMQPBus) handleDelivery(ctx context.Context, d amqp.Delivery, dispatcher *Dispatcher) {
	start := time.Now()
	if err := dispatcher.Dispatch(ctx, d.RoutingKey, d.Body); err != nil {
		b.logger.Error("イベント処理に失敗しました。デッドレターへ送ります",
			slog.String("routing_key", d.RoutingKey),
			slog.String("error", err.Error()))
		b.collector.EventFailed(d.RoutingKey)
		if nackErr := d.Nack(false, false); nackErr != nil {
			b.logger.Error("nackに失敗しました", slog.String("error", nackErr.Error()))
		}
		return
	}

	b.collector.EventConsumed(d.RoutingKey, time.Since(start))
	if ackErr := d.Ack(false); ackErr != nil {
		b.logger.Error("ackに失敗しました", slog.String("error", ackErr.Error()))
	}
}

// Close は接続を閉じる。
func (b *AMQPBus) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
