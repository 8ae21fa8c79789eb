package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 16

// Subscription は1つのソースの結果を受け取る購読
type Subscription struct {
	ID       string
	SourceID string

	ch     chan Result
	closed bool
}

// C は結果を受け取るチャンネルを返す。購読解除でクローズされる
func (s *Subscription) C() <-chan Result {
	return s.ch
}

// Broadcaster は解析結果を購読者に配信する
type Broadcaster struct {
	subscribers map[string]*Subscription
	mu          sync.Mutex
}

// NewBroadcaster は新しいBroadcasterを作成する
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscription),
	}
}

// Subscribe は指定されたソースの購読を開始する
func (b *Broadcaster) Subscribe(sourceID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	sub := &Subscription{
		ID:       uuid.New().String(),
		SourceID: sourceID,
		ch:       make(chan Result, buffer),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe は購読を解除してチャンネルをクローズする
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return
	}
	delete(b.subscribers, id)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// CloseSource は指定されたソースの購読を全て解除する
func (b *Broadcaster) CloseSource(sourceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		if sub.SourceID != sourceID {
			continue
		}
		delete(b.subscribers, id)
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
}

// Count は現在の購読数を返す
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Handle は結果を該当ソースの購読者に送る
// 購読者のバッファが満杯の場合は古い結果を破棄する
func (b *Broadcaster) Handle(result Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		if sub.SourceID != result.SourceID {
			continue
		}

		select {
		case sub.ch <- result:
			continue
		default:
		}

		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- result:
		default:
		}
	}
}
