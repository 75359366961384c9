// Package event は席割り当てのドメインイベントをRabbitMQへ発行する。
// 発行の失敗は呼び出し元の処理を中断しない。
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SeatsAssignedQueue は席割り当てイベントのキュー名。
const SeatsAssignedQueue = "seats.assigned"

const (
	defaultBufferSize     = 256
	defaultDialTimeout    = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

var (
	// ErrBufferFull は送信待ちのイベントが上限に達していることを示す。
	ErrBufferFull = errors.New("seats.assigned event buffer is full")
	// ErrPublisherClosed はClose後に発行が要求されたことを示す。
	ErrPublisherClosed = errors.New("publisher is closed")
)

// SeatsAssigned は席割り当てのコミット後に発行されるイベント。
type SeatsAssigned struct {
	UserID          int64     `json:"user_id"`
	SeatIDs         []int64   `json:"seat_ids"`
	ReleasedSeatIDs []int64   `json:"released_seat_ids,omitempty"`
	AssignedAt      time.Time `json:"assigned_at"`
}

// Publisher はドメインイベントの発行インターフェース。
type Publisher interface {
	PublishSeatsAssigned(ctx context.Context, ev SeatsAssigned) error
}

// NopPublisher はイベントを発行しないPublisher。RABBITMQ_URL未設定時に使用する。
type NopPublisher struct{}

// PublishSeatsAssigned は何もしない。
func (NopPublisher) PublishSeatsAssigned(context.Context, SeatsAssigned) error { return nil }

// amqpChannel はamqp.Channelのうち発行に必要なメソッド。
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc はブローカーへ接続し、チャネルと接続のクローザーを返す。
// timeout はTCP接続とAMQPハンドシェイクの合計に適用される。
type dialFunc func(url string, timeout time.Duration) (amqpChannel, io.Closer, error)

func dialAMQP(url string, timeout time.Duration) (amqpChannel, io.Closer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	return ch, conn, nil
}

// Options はRabbitPublisherの動作パラメータ。ゼロ値の項目は既定値になる。
type Options struct {
	// BufferSize は送信待ちにできるイベント数。
	BufferSize int
	// DialTimeout は接続確立の上限時間。
	DialTimeout time.Duration
	// PublishTimeout は1件の送信の上限時間。
	PublishTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	return o
}

// RabbitPublisher はRabbitMQの既定エクスチェンジ経由でイベントを発行する。
// PublishSeatsAssigned はイベントをバッファへ積むだけで戻り、送信はバックグラウンドの
// ワーカーが1本の接続を使い回して行う。接続や送信に失敗した場合は接続を破棄し、
// 次のイベントで再接続する。失敗したイベントは破棄される。
type RabbitPublisher struct {
	url    string
	logger *slog.Logger
	dial   dialFunc
	opts   Options

	queue     chan SeatsAssigned
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// ワーカーのみが触る
	ch   amqpChannel
	conn io.Closer
}

// NewRabbitPublisher はRabbitPublisherを生成し、送信ワーカーを起動する。
// 使い終わったらCloseを呼ぶこと。
func NewRabbitPublisher(url string, logger *slog.Logger, opts Options) *RabbitPublisher {
	return newRabbitPublisher(url, logger, dialAMQP, opts)
}

func newRabbitPublisher(url string, logger *slog.Logger, dial dialFunc, opts Options) *RabbitPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	p := &RabbitPublisher{
		url:    url,
		logger: logger,
		dial:   dial,
		opts:   opts,
		queue:  make(chan SeatsAssigned, opts.BufferSize),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// New はURLが空ならNopPublisher、そうでなければRabbitPublisherを返す。
func New(url string, logger *slog.Logger) Publisher {
	if url == "" {
		return NopPublisher{}
	}
	return NewRabbitPublisher(url, logger, Options{})
}

// PublishSeatsAssigned は席割り当てイベントを送信待ちに積む。ブローカーの状態に関わらずすぐに戻る。
func (p *RabbitPublisher) PublishSeatsAssigned(ctx context.Context, ev SeatsAssigned) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}

	select {
	case p.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.Warn("seats.assigned buffer full, dropping event", slog.Int64("user_id", ev.UserID))
		return ErrBufferFull
	}
}

// Close はワーカーを停止し、積まれていたイベントを送信してから接続を閉じる。
// ブローカーに接続できない場合、残りのイベントは破棄される。複数回呼んでもよい。
func (p *RabbitPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	return nil
}

func (p *RabbitPublisher) run() {
	defer p.wg.Done()
	defer p.disconnect()

	for {
		select {
		case ev := <-p.queue:
			_ = p.deliver(ev)
		case <-p.done:
			p.drain()
			return
		}
	}
}

func (p *RabbitPublisher) drain() {
	for {
		select {
		case ev := <-p.queue:
			if err := p.deliver(ev); errors.Is(err, errUnreachable) {
				p.logger.Warn("rabbitmq unreachable, dropping queued events", slog.Int("dropped", len(p.queue)))
				return
			}
		default:
			return
		}
	}
}

var errUnreachable = errors.New("rabbitmq unreachable")

func (p *RabbitPublisher) deliver(ev SeatsAssigned) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal seats.assigned", slog.String("error", err.Error()))
		return err
	}

	if p.ch == nil {
		if err := p.connect(); err != nil {
			p.logger.Warn("rabbitmq connection failed", slog.String("error", err.Error()))
			return fmt.Errorf("%w: %v", errUnreachable, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.PublishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", SeatsAssignedQueue, false, false, msg); err != nil {
		p.logger.Warn("rabbitmq publish failed", slog.String("error", err.Error()), slog.Int64("user_id", ev.UserID))
		p.disconnect()
		return err
	}
	return nil
}

// connect はブローカーへ接続し、seats.assigned キューをdurableで宣言する。
func (p *RabbitPublisher) connect() error {
	ch, conn, err := p.dial(p.url, p.opts.DialTimeout)
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(
		SeatsAssignedQueue, // name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare failed: %w", err)
	}
	p.ch, p.conn = ch, conn
	return nil
}

func (p *RabbitPublisher) disconnect() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// compile-time interface check
var (
	_ Publisher = (*RabbitPublisher)(nil)
	_ Publisher = NopPublisher{}
	_ io.Closer = (*RabbitPublisher)(nil)
)
