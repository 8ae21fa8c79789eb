package camera

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"shoten/internal/log"
)

// DefaultSourceManager はソースManagerのデフォルト実装
type DefaultSourceManager struct {
	factory SourceFactory
	sources map[string]Source
	mu      sync.RWMutex
}

// NewDefaultSourceManager は新しいDefaultSourceManagerを作成する
func NewDefaultSourceManager(factory SourceFactory) *DefaultSourceManager {
	return &DefaultSourceManager{
		factory: factory,
		sources: make(map[string]Source),
	}
}

// Start は登録済みの全ソースを開始する
func (m *DefaultSourceManager) Start(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, source := range m.sources {
		if source.GetStatus() == StatusActive {
			continue
		}
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("ソース %s の開始に失敗: %w", id, err)
		}
		log.Info("ソースを開始しました", "source", id, "type", source.GetInfo().Type)
	}

	return nil
}

// Stop は全ソースを停止する
func (m *DefaultSourceManager) Stop(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stopErrors []error
	for id, source := range m.sources {
		if err := source.Stop(ctx); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("ソース %s の停止に失敗: %w", id, err))
		}
	}

	if len(stopErrors) > 0 {
		return fmt.Errorf("一部のソース停止に失敗: %v", stopErrors)
	}

	return nil
}

// GetSources は現在管理されているソース一覧をID順に取得する
func (m *DefaultSourceManager) GetSources() []SourceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(m.sources))
	for _, source := range m.sources {
		infos = append(infos, source.GetInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// GetSource は指定されたIDのソースを取得する
func (m *DefaultSourceManager) GetSource(id string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, exists := m.sources[id]
	return source, exists
}

// AddSource はソースを動的に追加する
func (m *DefaultSourceManager) AddSource(_ context.Context, config SourceConfig) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	if _, exists := m.sources[config.ID]; exists {
		return nil, fmt.Errorf("ソース %s は既に追加されています", config.ID)
	}

	source, err := m.factory.CreateSource(config)
	if err != nil {
		return nil, fmt.Errorf("ソースの作成に失敗: %w", err)
	}

	m.sources[config.ID] = source
	return source, nil
}

// RemoveSource はソースを削除する
func (m *DefaultSourceManager) RemoveSource(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, exists := m.sources[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	// ソースが動作中の場合は停止
	if source.GetStatus() == StatusActive {
		if err := source.Stop(ctx); err != nil {
			return fmt.Errorf("ソースの停止に失敗: %w", err)
		}
	}

	delete(m.sources, id)
	return nil
}

// StartSource はソースを開始する
func (m *DefaultSourceManager) StartSource(ctx context.Context, id string) error {
	source, exists := m.GetSource(id)
	if !exists {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	return source.Start(ctx)
}

// StopSource はソースを停止する
func (m *DefaultSourceManager) StopSource(ctx context.Context, id string) error {
	source, exists := m.GetSource(id)
	if !exists {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	return source.Stop(ctx)
}
