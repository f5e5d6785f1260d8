package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/stuKim0221/smart-lotto/logger"
)

// ErrBrokerUnavailable is returned while the AMQP connection is down.
var ErrBrokerUnavailable = errors.New("amqp broker unavailable")

// ReconnectConfig 重连配置
type ReconnectConfig struct {
	MaxRetries    int           // 最大重试次数 (0 = 无限重试)
	InitialDelay  time.Duration // 初始延迟
	MaxDelay      time.Duration // 最大延迟
	BackoffFactor float64       // 退避因子
}

// DefaultReconnectConfig 默认重连配置
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c ReconnectConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.BackoffFactor)
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// AMQPBroker 将同步事件发布到 topic exchange. A lost connection is redialed
// in the background; publishing in the meantime fails with ErrBrokerUnavailable.
type AMQPBroker struct {
	url       string
	exchange  string
	reconnect ReconnectConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAMQPBroker 连接 AMQP 并声明 exchange
func NewAMQPBroker(url, exchange string) (*AMQPBroker, error) {
	b := newAMQPBroker(url, exchange, DefaultReconnectConfig())
	conn, channel, err := b.dial()
	if err != nil {
		return nil, err
	}
	b.attach(conn, channel)
	return b, nil
}

func newAMQPBroker(url, exchange string, reconnect ReconnectConfig) *AMQPBroker {
	return &AMQPBroker{
		url:       url,
		exchange:  exchange,
		reconnect: reconnect,
		done:      make(chan struct{}),
	}
}

// dial opens a connection and declares the exchange. It holds no lock.
func (b *AMQPBroker) dial() (*amqp.Connection, *amqp.Channel, error) {
	logger.Printf("[AMQP] Connecting to event exchange %s...", b.exchange)

	conn, err := amqp.DialConfig(b.url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		b.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, channel, nil
}

// attach installs a live connection and starts watching it.
func (b *AMQPBroker) attach(conn *amqp.Connection, channel *amqp.Channel) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.conn, b.channel = conn, channel
	b.mu.Unlock()

	lost := conn.NotifyClose(make(chan *amqp.Error, 1))
	b.wg.Add(1)
	go b.monitorConnection(lost)
	logger.Println("[AMQP] ✅ Connected")
}

// monitorConnection 监控连接状态并自动重连
func (b *AMQPBroker) monitorConnection(lost <-chan *amqp.Error) {
	defer b.wg.Done()

	select {
	case <-b.done:
		return
	case closeErr := <-lost:
		if closeErr == nil {
			logger.Println("[AMQP] Connection closed normally")
			return
		}
		logger.Errorf("[AMQP] ⚠️  Connection lost: %v", closeErr)
	}

	b.mu.Lock()
	b.conn, b.channel = nil, nil
	b.mu.Unlock()

	b.reconnectLoop()
}

func (b *AMQPBroker) reconnectLoop() {
	delay := b.reconnect.InitialDelay
	for attempt := 1; ; attempt++ {
		if b.reconnect.MaxRetries > 0 && attempt > b.reconnect.MaxRetries {
			logger.Errorf("[AMQP] ❌ Max retries (%d) reached, giving up", b.reconnect.MaxRetries)
			return
		}

		logger.Printf("[AMQP] 🔄 Reconnecting in %v (attempt %d)...", delay, attempt)
		select {
		case <-b.done:
			return
		case <-time.After(delay):
		}

		conn, channel, err := b.dial()
		if err != nil {
			logger.Errorf("[AMQP] ❌ Reconnect failed: %v", err)
			delay = b.reconnect.next(delay)
			continue
		}
		b.attach(conn, channel)
		return
	}
}

// Produce 实现 MessageBroker 接口. It never dials.
func (b *AMQPBroker) Produce(msg BrokerMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel == nil {
		return fmt.Errorf("%w: dropped %s", ErrBrokerUnavailable, msg.Topic)
	}

	err := b.channel.Publish(b.exchange, msg.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Key,
		Timestamp:    time.Now(),
		Body:         msg.Value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Consume 实现 MessageBroker 接口 with an exclusive auto-deleted queue bound to
// topic. The returned channel closes when the connection is lost.
func (b *AMQPBroker) Consume(topic string) (<-chan BrokerMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel == nil {
		return nil, fmt.Errorf("%w: cannot consume %s", ErrBrokerUnavailable, topic)
	}

	queue, err := b.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := b.channel.QueueBind(queue.Name, topic, b.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}
	deliveries, err := b.channel.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	out := make(chan BrokerMessage)
	go func() {
		defer close(out)
		for d := range deliveries {
			out <- BrokerMessage{Topic: d.RoutingKey, Key: d.MessageId, Value: d.Body}
		}
	}()
	return out, nil
}

// Close 关闭连接并停止重连
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	logger.Println("[AMQP] Closing event broker...")
	b.closed = true
	close(b.done)
	conn := b.conn
	b.conn, b.channel = nil, nil
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	b.wg.Wait()
	return err
}
