package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBroker_FansOutToEverySubscriber(t *testing.T) {
	broker := NewInMemoryBroker()
	topic := GetTopicName(EventDrawApplied)

	first, err := broker.Consume(topic)
	require.NoError(t, err)
	second, err := broker.Consume(topic)
	require.NoError(t, err)
	other, err := broker.Consume(GetTopicName(EventRoundFailed))
	require.NoError(t, err)

	require.NoError(t, broker.Produce(BrokerMessage{Topic: topic, Key: "1100", Value: []byte("{}")}))

	for _, ch := range []<-chan BrokerMessage{first, second} {
		select {
		case msg := <-ch:
			assert.Equal(t, "1100", msg.Key)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
	assert.Len(t, other, 0)

	require.NoError(t, broker.Close())
	_, open := <-first
	assert.False(t, open)
}

func TestInMemoryBroker_DropsWhenFull(t *testing.T) {
	broker := NewInMemoryBroker()
	broker.bufSize = 1
	ch, err := broker.Consume("t")
	require.NoError(t, err)

	require.NoError(t, broker.Produce(BrokerMessage{Topic: "t", Key: "a"}))
	require.NoError(t, broker.Produce(BrokerMessage{Topic: "t", Key: "b"}))
	assert.Len(t, ch, 1)
	assert.Equal(t, "a", (<-ch).Key)
}

type failingBroker struct{ produced int }

func (b *failingBroker) Produce(BrokerMessage) error {
	b.produced++
	return errors.New("channel closed")
}
func (b *failingBroker) Consume(string) (<-chan BrokerMessage, error) { return nil, nil }
func (b *failingBroker) Close() error                                 { return nil }

func TestBrokerPublisher(t *testing.T) {
	mem := NewInMemoryBroker()
	failing := &failingBroker{}
	ch, err := mem.Consume(GetTopicName(EventDrawApplied))
	require.NoError(t, err)

	pub := NewBrokerPublisher(failing, mem)
	err = pub.Publish(SyncEvent{Type: EventDrawApplied, CycleID: "c1", Round: 1100, Outcome: "inserted"})
	assert.Error(t, err)
	assert.Equal(t, 1, failing.produced)

	msg := <-ch
	assert.Equal(t, "lotto.draw.applied", msg.Topic)
	assert.Equal(t, "1100", msg.Key)

	var event SyncEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, 1100, event.Round)
	assert.Equal(t, "c1", event.CycleID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestAllEventTopics(t *testing.T) {
	assert.Equal(t, []string{
		"lotto.draw.applied", "lotto.prize.revised", "lotto.round.failed", "lotto.cycle.finished",
	}, AllEventTopics())
}
