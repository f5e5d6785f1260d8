package services

import (
	"encoding/json"
	"fmt"
	"time"
)

// BrokerMessage 定义了在 Broker 中传输的消息结构
type BrokerMessage struct {
	Topic string
	Key   string // 期号或同步周期 ID
	Value []byte // JSON 编码的 SyncEvent
}

// MessageBroker 定义了消息队列的抽象接口
type MessageBroker interface {
	// Produce 发送消息到指定的 Topic
	Produce(msg BrokerMessage) error
	// Consume 订阅指定的 Topic，返回一个消息通道
	Consume(topic string) (<-chan BrokerMessage, error)
	// Close 关闭 Broker 连接
	Close() error
}

// SyncEventType names a scheduler event.
type SyncEventType string

const (
	EventDrawApplied   SyncEventType = "draw.applied"
	EventPrizeRevised  SyncEventType = "prize.revised"
	EventRoundFailed   SyncEventType = "round.failed"
	EventCycleFinished SyncEventType = "cycle.finished"
)

// SyncEvent is published for every observable scheduler transition.
type SyncEvent struct {
	Type      SyncEventType `json:"type"`
	CycleID   string        `json:"cycle_id"`
	Round     int           `json:"round,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Error     string        `json:"error,omitempty"`
	Report    *SyncReport   `json:"report,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// GetTopicName 根据事件类型获取 Topic 名称
func GetTopicName(eventType SyncEventType) string {
	return fmt.Sprintf("lotto.%s", eventType)
}

// EventPublisher 同步事件发布接口
type EventPublisher interface {
	Publish(event SyncEvent) error
}

// BrokerPublisher encodes events and produces them on every broker. A broker
// failure is returned after the remaining brokers were tried.
type BrokerPublisher struct {
	brokers []MessageBroker
}

func NewBrokerPublisher(brokers ...MessageBroker) *BrokerPublisher {
	return &BrokerPublisher{brokers: brokers}
}

func (p *BrokerPublisher) Publish(event SyncEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	key := event.CycleID
	if event.Round > 0 {
		key = fmt.Sprintf("%d", event.Round)
	}
	msg := BrokerMessage{Topic: GetTopicName(event.Type), Key: key, Value: value}

	var firstErr error
	for _, b := range p.brokers {
		if err := b.Produce(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AllEventTopics lists every topic the scheduler produces on.
func AllEventTopics() []string {
	return []string{
		GetTopicName(EventDrawApplied),
		GetTopicName(EventPrizeRevised),
		GetTopicName(EventRoundFailed),
		GetTopicName(EventCycleFinished),
	}
}
