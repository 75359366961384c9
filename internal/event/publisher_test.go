package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeChannel はテスト用のamqpChannel実装。
type fakeChannel struct {
	declared []string
	// failFirst 回目までのPublishはpublishErrを返す
	failFirst  int
	publishErr error
	calls      int
	published  []amqp.Publishing
	keys       []string
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.calls++
	if f.publishErr != nil && f.calls <= f.failFirst {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeDialer はdialFuncの呼び出し回数を数える。
type fakeDialer struct {
	ch      *fakeChannel
	conn    *fakeConn
	err     error
	release chan struct{}
	dials   int
}

func (d *fakeDialer) dial(url string, timeout time.Duration) (amqpChannel, io.Closer, error) {
	if d.release != nil {
		<-d.release
	}
	d.dials++
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.ch, d.conn, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRabbitPublisher_PublishSeatsAssigned(t *testing.T) {
	d := &fakeDialer{ch: &fakeChannel{}, conn: &fakeConn{}}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{})

	at := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	err := p.PublishSeatsAssigned(context.Background(), SeatsAssigned{
		UserID:          5,
		SeatIDs:         []int64{4, 5},
		ReleasedSeatIDs: []int64{1, 2, 3},
		AssignedAt:      at,
	})
	if err != nil {
		t.Fatalf("PublishSeatsAssigned: %v", err)
	}
	_ = p.Close()

	ch := d.ch
	if len(ch.declared) != 1 || ch.declared[0] != SeatsAssignedQueue {
		t.Errorf("declared = %v, want [%s]", ch.declared, SeatsAssignedQueue)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(ch.published))
	}
	if ch.keys[0] != SeatsAssignedQueue {
		t.Errorf("routing key = %q, want %q", ch.keys[0], SeatsAssignedQueue)
	}

	msg := ch.published[0]
	if msg.DeliveryMode != amqp.Persistent {
		t.Errorf("DeliveryMode = %d, want persistent", msg.DeliveryMode)
	}
	if msg.ContentType != "application/json" {
		t.Errorf("ContentType = %q", msg.ContentType)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["user_id"] != float64(5) {
		t.Errorf("user_id = %v, want 5", got["user_id"])
	}
	if ids, ok := got["released_seat_ids"].([]interface{}); !ok || len(ids) != 3 {
		t.Errorf("released_seat_ids = %v", got["released_seat_ids"])
	}

	if !ch.closed || !d.conn.closed {
		t.Error("channel and connection should be closed after Close")
	}
}

func TestRabbitPublisher_OmitsEmptyReleased(t *testing.T) {
	d := &fakeDialer{ch: &fakeChannel{}, conn: &fakeConn{}}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{})

	if err := p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: 1, SeatIDs: []int64{1}}); err != nil {
		t.Fatalf("PublishSeatsAssigned: %v", err)
	}
	_ = p.Close()

	if len(d.ch.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(d.ch.published))
	}
	var got map[string]interface{}
	if err := json.Unmarshal(d.ch.published[0].Body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if _, ok := got["released_seat_ids"]; ok {
		t.Error("released_seat_ids should be omitted when empty")
	}
}

// TestRabbitPublisher_ReusesConnection は複数イベントが1本の接続で送られることを検証する。
func TestRabbitPublisher_ReusesConnection(t *testing.T) {
	d := &fakeDialer{ch: &fakeChannel{}, conn: &fakeConn{}}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{})

	for i := int64(1); i <= 3; i++ {
		if err := p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: i}); err != nil {
			t.Fatalf("PublishSeatsAssigned(%d): %v", i, err)
		}
	}
	_ = p.Close()

	if d.dials != 1 {
		t.Errorf("dials = %d, want 1", d.dials)
	}
	if len(d.ch.declared) != 1 {
		t.Errorf("declared %d times, want 1", len(d.ch.declared))
	}
	if len(d.ch.published) != 3 {
		t.Errorf("published = %d messages, want 3", len(d.ch.published))
	}
}

// TestRabbitPublisher_RedialsAfterPublishError は送信失敗後に接続を張り直すことを検証する。
func TestRabbitPublisher_RedialsAfterPublishError(t *testing.T) {
	d := &fakeDialer{
		ch:   &fakeChannel{publishErr: errors.New("channel closed"), failFirst: 1},
		conn: &fakeConn{},
	}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{})

	_ = p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: 1})
	_ = p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: 2})
	_ = p.Close()

	if d.dials != 2 {
		t.Errorf("dials = %d, want 2", d.dials)
	}
	if len(d.ch.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(d.ch.published))
	}
	var got SeatsAssigned
	if err := json.Unmarshal(d.ch.published[0].Body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got.UserID != 2 {
		t.Errorf("user_id = %d, want 2", got.UserID)
	}
}

// TestRabbitPublisher_DialErrorDoesNotSurface は接続失敗が呼び出し元へ伝わらないことを検証する。
func TestRabbitPublisher_DialErrorDoesNotSurface(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{})

	if err := p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: 1}); err != nil {
		t.Fatalf("PublishSeatsAssigned: %v", err)
	}
	_ = p.Close()

	if d.dials == 0 {
		t.Error("dial should have been attempted")
	}
}

// TestRabbitPublisher_BufferFull は送信待ちが上限に達すると即座にErrBufferFullを返すことを検証する。
func TestRabbitPublisher_BufferFull(t *testing.T) {
	d := &fakeDialer{ch: &fakeChannel{}, conn: &fakeConn{}, release: make(chan struct{})}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{BufferSize: 1})

	var full int
	for i := int64(1); i <= 3; i++ {
		if err := p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: i}); errors.Is(err, ErrBufferFull) {
			full++
		}
	}
	if full == 0 {
		t.Error("expected at least one ErrBufferFull")
	}

	close(d.release)
	_ = p.Close()
}

func TestRabbitPublisher_PublishAfterClose(t *testing.T) {
	d := &fakeDialer{ch: &fakeChannel{}, conn: &fakeConn{}}
	p := newRabbitPublisher("amqp://test", discardLogger(), d.dial, Options{})
	_ = p.Close()
	_ = p.Close()

	if err := p.PublishSeatsAssigned(context.Background(), SeatsAssigned{UserID: 1}); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("err = %v, want ErrPublisherClosed", err)
	}
	if d.dials != 0 {
		t.Errorf("dials = %d, want 0", d.dials)
	}
}

// silentListener は接続を受け付けるだけで何も送らないTCPサーバーを起動する。
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

// TestDialAMQP_HandshakeTimeout は応答しないブローカーへの接続がタイムアウトで打ち切られることを検証する。
func TestDialAMQP_HandshakeTimeout(t *testing.T) {
	url := silentListener(t)

	start := time.Now()
	_, _, err := dialAMQP(url, 200*time.Millisecond)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected dial error against a silent broker")
	}
	if elapsed > 3*time.Second {
		t.Errorf("dial took %v, want it bounded by the dial timeout", elapsed)
	}
}

// TestRabbitPublisher_SilentBrokerDoesNotBlock は応答しないブローカーでも発行がすぐに戻り、
// Closeも接続タイムアウト程度で終わることを検証する。
func TestRabbitPublisher_SilentBrokerDoesNotBlock(t *testing.T) {
	url := silentListener(t)
	p := NewRabbitPublisher(url, discardLogger(), Options{DialTimeout: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	for i := int64(1); i <= 3; i++ {
		if err := p.PublishSeatsAssigned(ctx, SeatsAssigned{UserID: i}); err != nil {
			t.Fatalf("PublishSeatsAssigned(%d): %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("PublishSeatsAssigned took %v, want it to return immediately", elapsed)
	}

	closeStart := time.Now()
	_ = p.Close()
	if elapsed := time.Since(closeStart); elapsed > 3*time.Second {
		t.Errorf("Close took %v, want it bounded by the dial timeout", elapsed)
	}
}

func TestNew_SelectsPublisherByURL(t *testing.T) {
	if _, ok := New("", nil).(NopPublisher); !ok {
		t.Error("New(\"\") should return NopPublisher")
	}
	pub := New("amqp://localhost", nil)
	rp, ok := pub.(*RabbitPublisher)
	if !ok {
		t.Fatal("New(url) should return *RabbitPublisher")
	}
	_ = rp.Close()
}
