package pipeline

import (
	"sync"
)

// LatestStore はソースごとに最新の解析結果を保持する
type LatestStore struct {
	results map[string]Result
	mu      sync.RWMutex
}

// NewLatestStore は新しいLatestStoreを作成する
func NewLatestStore() *LatestStore {
	return &LatestStore{
		results: make(map[string]Result),
	}
}

// Handle は結果を保存する。遅れて届いた古い結果では上書きしない
func (s *LatestStore) Handle(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.results[result.SourceID]; exists && current.Seq > result.Seq {
		return
	}
	s.results[result.SourceID] = result
}

// Get は指定されたソースの最新結果を取得する
func (s *LatestStore) Get(sourceID string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.results[sourceID]
	return result, exists
}

// Delete は指定されたソースの結果を削除する
func (s *LatestStore) Delete(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, sourceID)
}
