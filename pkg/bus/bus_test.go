package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collector() (*[]Event, HandlerFunc) {
	var mu sync.Mutex
	var events []Event
	return &events, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
}

func TestSubscribePublish_DeliversToMatchingType(t *testing.T) {
	b := NewBus(nil)
	got, handler := collector()
	b.Subscribe(Transcript, handler)

	b.Publish(New(Transcript, map[string]any{"text": "hi"}))
	b.Publish(New(AudioChunk, map[string]any{}))

	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "hi", (*got)[0].Data["text"])
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	b := NewBus(nil)
	got, handler := collector()
	b.Subscribe(Transcript, handler)

	for i := 0; i < 100; i++ {
		b.Publish(New(Transcript, map[string]any{"seq": i}))
	}

	require.Eventually(t, func() bool { return len(*got) == 100 }, time.Second, time.Millisecond)
	for i, e := range *got {
		assert.Equal(t, i, e.Data["seq"])
	}
}

func TestSubscribe_RoleFilterRestrictsDelivery(t *testing.T) {
	b := NewBus(nil)
	got, handler := collector()
	b.Subscribe(Assistance, handler, Role("interviewer"))

	b.Publish(New(Assistance, map[string]any{}).WithRole("support_agent"))
	b.Publish(New(Assistance, map[string]any{"ok": true}).WithRole("interviewer"))
	b.Publish(New(Assistance, map[string]any{"ok": "unset"}))

	require.Eventually(t, func() bool { return len(*got) == 2 }, time.Second, time.Millisecond)
}

func TestPublish_HandlerPanicBecomesErrorEvent(t *testing.T) {
	b := NewBus(nil)
	b.Subscribe(Transcript, HandlerFunc(func(Event) { panic("boom") }))

	errs, errHandler := collector()
	b.Subscribe(ErrorEvent, errHandler)

	b.Publish(New(Transcript, nil))

	require.Eventually(t, func() bool { return len(*errs) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, string(Transcript), (*errs)[0].Data["original_type"])
}

func TestSubscribe_IdempotentPerHandler(t *testing.T) {
	b := NewBus(nil)
	got, handler := collector()
	b.Subscribe(Transcript, handler)
	b.Subscribe(Transcript, handler)

	b.Publish(New(Transcript, map[string]any{}))

	require.Eventually(t, func() bool { return len(*got) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, *got, 1)
}
