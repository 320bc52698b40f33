package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const storageTopic = "storage"

// Origin is the in-process broadcast domain shared by memory tabs, the way
// tabs of one browser origin see each other's storage events.
type Origin struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

// NewOrigin creates an origin. Close it when every tab is done.
func NewOrigin() *Origin {
	return &Origin{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{}),
		logger: log.Logger.With().Str("component", "storage-origin").Logger(),
	}
}

// OpenTab returns a new empty tab storage attached to the origin.
func (o *Origin) OpenTab() *Memory {
	m := NewMemory()
	m.origin = o
	return m
}

func (o *Origin) Close() error {
	return o.pubsub.Close()
}

func (o *Origin) publish(events []ChangeEvent) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			o.logger.Error().Err(err).Str("key", ev.Key).Msg("failed to encode storage event")
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("source", ev.Source)
		if err := o.pubsub.Publish(storageTopic, msg); err != nil {
			o.logger.Error().Err(err).Str("key", ev.Key).Msg("failed to publish storage event")
		}
	}
}

// Memory is a process-local tab storage. Without an origin it raises no events.
type Memory struct {
	id     string
	origin *Origin
	mu     sync.RWMutex
	items  map[string]string
}

var (
	_ Storage = (*Memory)(nil)
	_ Watcher = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		id:    uuid.NewString(),
		items: make(map[string]string),
	}
}

// ID identifies the tab in change events
func (m *Memory) ID() string {
	return m.id
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	old, existed := m.items[key]
	m.items[key] = value
	m.mu.Unlock()

	if existed && old == value {
		return nil
	}
	m.notify([]ChangeEvent{{Key: key, Source: m.id, At: time.Now()}})
	return nil
}

func (m *Memory) Remove(_ context.Context, keys ...string) error {
	var events []ChangeEvent

	m.mu.Lock()
	for _, key := range keys {
		if _, ok := m.items[key]; !ok {
			continue
		}
		delete(m.items, key)
		events = append(events, ChangeEvent{Key: key, Removed: true, Source: m.id, At: time.Now()})
	}
	m.mu.Unlock()

	m.notify(events)
	return nil
}

func (m *Memory) notify(events []ChangeEvent) {
	if m.origin == nil || len(events) == 0 {
		return
	}
	m.origin.publish(events)
}

// Watch delivers other tabs' events. A tab without an origin returns a nil
// channel, which never delivers.
func (m *Memory) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	if m.origin == nil {
		return nil, nil
	}

	messages, err := m.origin.pubsub.Subscribe(ctx, storageTopic)
	if err != nil {
		return nil, fmt.Errorf("[Memory Watch] failed to subscribe: %w", err)
	}

	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev ChangeEvent
			err := json.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil || ev.Source == m.id {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
