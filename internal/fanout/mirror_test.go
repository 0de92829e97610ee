package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func streamLen(t *testing.T, mr *miniredis.Miniredis, stream string) int {
	t.Helper()
	entries, err := mr.Stream(stream)
	if err != nil {
		return 0
	}
	return len(entries)
}

func TestStreamMirror_WritesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mirror := NewStreamMirror(client, "test:events", zap.NewNop())
	defer mirror.Close()

	mirror.Mirror(&Event{
		Type:       EventSample,
		ShipmentID: "SHIP-1",
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Data:       map[string]interface{}{"temperature": 5.2},
	})

	// 后台协程写入, 轮询直到落流
	require.Eventually(t, func() bool {
		return streamLen(t, mr, "test:events") == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := mr.Stream("test:events")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Values 是交替的 key/value 扁平列表
	var raw string
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		if entries[0].Values[i] == "data" {
			raw = entries[0].Values[i+1]
		}
	}
	require.NotEmpty(t, raw)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, EventSample, got.Type)
	assert.Equal(t, "SHIP-1", got.ShipmentID)
}

func TestHub_PublishGoesThroughMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hub := NewHub(4, zap.NewNop())
	mirror := NewStreamMirror(client, "test:events", zap.NewNop())
	defer mirror.Close()
	hub.SetMirror(mirror)

	// 没有任何订阅者也要镜像
	hub.PublishAlert("SHIP-1", time.Now().UTC(), map[string]interface{}{"severity": "critical"})

	require.Eventually(t, func() bool {
		return streamLen(t, mr, "test:events") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamMirror_UnavailableRedisDoesNotBlockPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	mirror := NewStreamMirror(client, "test:events", zap.NewNop())
	defer mirror.Close()

	// Redis 已宕: 投递必须立即返回, 不等待镜像写超时
	done := make(chan struct{})
	go func() {
		for i := 0; i < mirrorQueueSize*2; i++ {
			mirror.Mirror(&Event{Type: EventSample, ShipmentID: "SHIP-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Mirror must not block the publisher when redis is down")
	}
}
