package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishSyncReachesTypedAndWildcard(t *testing.T) {
	b := NewEventBus()
	var mu sync.Mutex
	var got []string

	b.Subscribe(EventTypeEmotionChanged, func(e Event) {
		mu.Lock()
		got = append(got, "typed:"+e.Data["emotion"].(string))
		mu.Unlock()
	})
	b.SubscribeAll(func(e Event) {
		mu.Lock()
		got = append(got, "all:"+string(e.Type))
		mu.Unlock()
	})

	b.PublishSync(NewEvent(EventTypeEmotionChanged, map[string]any{"emotion": "sad"}))
	b.PublishSync(NewEvent(EventTypeCreditsChanged, nil))

	assert.ElementsMatch(t, []string{
		"typed:sad",
		"all:" + string(EventTypeEmotionChanged),
		"all:" + string(EventTypeCreditsChanged),
	}, got)
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()
	calls := 0
	cancel := b.Subscribe(EventTypeSpeakingStopped, func(Event) { calls++ })

	b.PublishSync(NewEvent(EventTypeSpeakingStopped, nil))
	cancel()
	cancel()
	b.PublishSync(NewEvent(EventTypeSpeakingStopped, nil))

	assert.Equal(t, 1, calls)
}

func TestPublishIsAsync(t *testing.T) {
	b := NewEventBus()
	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe(EventTypeReplyReceived, func(e Event) {
		defer wg.Done()
		assert.False(t, e.Time.IsZero())
	})
	b.Publish(NewEvent(EventTypeReplyReceived, nil))
	wg.Wait()
}
