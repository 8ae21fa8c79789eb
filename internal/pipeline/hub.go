package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"shoten/internal/camera"
	"shoten/internal/log"
)

// ErrAlreadyAttached はソースが既にパイプラインに接続されている
var ErrAlreadyAttached = errors.New("ソースは既にパイプラインに接続されています")

type runnerHandle struct {
	runner *Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// Hub はソースごとのRunnerと共有の出力先を管理する
type Hub struct {
	store       *LatestStore
	broadcaster *Broadcaster
	sinks       []Sink

	runners map[string]*runnerHandle
	mu      sync.Mutex
}

// NewHub は新しいHubを作成する
// 最新値ストアと配信は常に有効で、extra はその後に呼ばれる
func NewHub(extra ...Sink) *Hub {
	h := &Hub{
		store:       NewLatestStore(),
		broadcaster: NewBroadcaster(),
		runners:     make(map[string]*runnerHandle),
	}
	h.sinks = append([]Sink{h.store, h.broadcaster}, extra...)
	return h
}

// Store は最新値ストアを返す
func (h *Hub) Store() *LatestStore {
	return h.store
}

// Broadcaster は配信を返す
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// Attach はソースの消費を開始する
func (h *Hub) Attach(ctx context.Context, source camera.Source, profile camera.Profile) error {
	id := source.GetInfo().ID

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.runners[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &runnerHandle{
		runner: NewRunner(source, profile.Calibration, h.sinks...),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.runners[id] = handle

	go func() {
		defer close(handle.done)
		handle.runner.Run(runCtx)
	}()

	log.Info("パイプラインに接続しました", "source", id, "profile", profile.ID)
	return nil
}

// Detach はソースの消費を停止し、購読と最新値を破棄する
func (h *Hub) Detach(id string) error {
	h.mu.Lock()
	handle, exists := h.runners[id]
	if exists {
		delete(h.runners, id)
	}
	h.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", camera.ErrSourceNotFound, id)
	}

	handle.cancel()
	<-handle.done

	h.broadcaster.CloseSource(id)
	h.store.Delete(id)
	return nil
}

// Attached はソースがパイプラインに接続されているかを返す
func (h *Hub) Attached(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, exists := h.runners[id]
	return exists
}

// Stats は指定されたソースの処理統計を返す
func (h *Hub) Stats(id string) (Stats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	handle, exists := h.runners[id]
	if !exists {
		return Stats{}, false
	}
	return handle.runner.Stats(), true
}

// AllStats はソースID順の処理統計を返す
func (h *Hub) AllStats() []Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := make([]Stats, 0, len(h.runners))
	for _, handle := range h.runners {
		stats = append(stats, handle.runner.Stats())
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].SourceID < stats[j].SourceID
	})
	return stats
}

// Stop は全てのRunnerを停止する
func (h *Hub) Stop() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.runners))
	for id := range h.runners {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		_ = h.Detach(id)
	}
}
