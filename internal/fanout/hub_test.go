package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	select {
	case data := <-sub.Events():
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return &ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHub_PublishToSubscriber(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sub := hub.Subscribe("SHIP-1")
	defer hub.Unsubscribe(sub)

	hub.PublishSample("SHIP-1", time.Now().UTC(), map[string]float64{"temperature": 5.2})

	ev := drain(t, sub)
	assert.Equal(t, EventSample, ev.Type)
	assert.Equal(t, "SHIP-1", ev.ShipmentID)
}

func TestHub_TopicIsolation(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sub1 := hub.Subscribe("SHIP-1")
	sub2 := hub.Subscribe("SHIP-2")
	defer hub.Unsubscribe(sub1)
	defer hub.Unsubscribe(sub2)

	hub.PublishAlert("SHIP-1", time.Now().UTC(), map[string]string{"category": "temperature"})

	ev := drain(t, sub1)
	assert.Equal(t, EventAlert, ev.Type)

	select {
	case <-sub2.Events():
		t.Fatal("subscriber of another shipment received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_MultipleSubscribersSameShipment(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sub1 := hub.Subscribe("SHIP-1")
	sub2 := hub.Subscribe("SHIP-1")
	defer hub.Unsubscribe(sub1)
	defer hub.Unsubscribe(sub2)

	assert.Equal(t, 2, hub.SubscriberCount("SHIP-1"))

	hub.PublishSample("SHIP-1", time.Now().UTC(), nil)
	drain(t, sub1)
	drain(t, sub2)
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	sub := hub.Subscribe("SHIP-1")
	defer hub.Unsubscribe(sub)

	// 队列容量为2, 连发4条, 前两条应被丢弃
	for i := 0; i < 4; i++ {
		hub.PublishSample("SHIP-1", time.Now().UTC(), map[string]int{"seq": i})
	}

	first := drain(t, sub)
	seq := first.Data.(map[string]interface{})["seq"].(float64)
	assert.GreaterOrEqual(t, seq, 2.0)
}

func TestHub_UnsubscribeRemovesTopic(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sub := hub.Subscribe("SHIP-1")
	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.SubscriberCount("SHIP-1"))
	// 重复取消订阅不应panic
	hub.Unsubscribe(sub)

	// 无订阅者时发布直接丢弃
	hub.PublishSample("SHIP-1", time.Now().UTC(), nil)
}

func TestHub_PublishAfterUnsubscribeDoesNotPanic(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sub := hub.Subscribe("SHIP-1")
	hub.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
