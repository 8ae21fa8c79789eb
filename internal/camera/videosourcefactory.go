package camera

import (
	"fmt"
	"sort"
)

// SourceConfig はソース作成設定
type SourceConfig struct {
	ID          string     // ソースID（空の場合は自動採番）
	Name        string     // 表示名
	Type        SourceType // ソースタイプ
	ProfileID   string     // キャリブレーションプロファイル
	Path        string     // 再生ファイル（replay の場合）
	FPS         int        // フレームレート
	Count       int        // 生成フレーム数（synthetic の場合、0 は無制限）
	Loop        bool       // 繰り返し再生（replay の場合）
	FrameBuffer int        // フレームチャンネルの容量
}

// SourceFactory はソース作成ファクトリー
type SourceFactory interface {
	CreateSource(config SourceConfig) (Source, error)
	GetSupportedTypes() []SourceType
}

// SourceCreator はソース作成関数の型
type SourceCreator func(config SourceConfig, profile Profile) (Source, error)

// DefaultSourceFactory は標準実装
type DefaultSourceFactory struct {
	catalog  *Catalog
	creators map[SourceType]SourceCreator
}

// NewSourceFactory は新しいファクトリーを作成する
func NewSourceFactory(catalog *Catalog) *DefaultSourceFactory {
	factory := &DefaultSourceFactory{
		catalog:  catalog,
		creators: make(map[SourceType]SourceCreator),
	}

	// 再生ソースの作成関数を登録
	factory.Register(SourceTypeReplay, NewReplaySourceFromConfig)

	// 合成ソースの作成関数を登録
	factory.Register(SourceTypeSynthetic, NewSyntheticSourceFromConfig)

	return factory
}

// Register はソース作成関数を登録する
func (f *DefaultSourceFactory) Register(sourceType SourceType, creator SourceCreator) {
	f.creators[sourceType] = creator
}

// CreateSource はソースを作成する
func (f *DefaultSourceFactory) CreateSource(config SourceConfig) (Source, error) {
	creator, exists := f.creators[config.Type]
	if !exists {
		return nil, fmt.Errorf("サポートされていないソースタイプ: %s", config.Type)
	}
	if config.ID == "" {
		return nil, fmt.Errorf("ソースIDが空です")
	}

	profile, err := f.catalog.Get(config.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("ソース %s のプロファイル解決に失敗: %w", config.ID, err)
	}

	return creator(config, profile)
}

// GetSupportedTypes はサポートされているソースタイプを名前順に返す
func (f *DefaultSourceFactory) GetSupportedTypes() []SourceType {
	types := make([]SourceType, 0, len(f.creators))
	for sourceType := range f.creators {
		types = append(types, sourceType)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})
	return types
}

// NewReplaySourceFromConfig は設定からReplaySourceを作成する
func NewReplaySourceFromConfig(config SourceConfig, profile Profile) (Source, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("再生ソースの作成にはファイルパスが必要です")
	}

	file, err := LoadReplayFile(config.Path)
	if err != nil {
		return nil, err
	}
	if file.Profile != "" && file.Profile != profile.ID {
		return nil, fmt.Errorf("再生ファイルのプロファイル %s がソースのプロファイル %s と一致しません", file.Profile, profile.ID)
	}

	info := SourceInfo{
		ID:   config.ID,
		Name: sourceName(config, "Replay"),
	}

	return NewReplaySource(info, profile, file.Samples, ReplayOptions{
		FPS:         config.FPS,
		Loop:        config.Loop,
		FrameBuffer: config.FrameBuffer,
	}), nil
}

// NewSyntheticSourceFromConfig は設定からSyntheticSourceを作成する
func NewSyntheticSourceFromConfig(config SourceConfig, profile Profile) (Source, error) {
	info := SourceInfo{
		ID:   config.ID,
		Name: sourceName(config, "Synthetic"),
	}

	return NewSyntheticSource(info, profile, SyntheticOptions{
		FPS:         config.FPS,
		Count:       config.Count,
		FrameBuffer: config.FrameBuffer,
	}), nil
}

// sourceName は表示名が未設定の場合にデフォルト名を生成する
func sourceName(config SourceConfig, kind string) string {
	if config.Name != "" {
		return config.Name
	}
	return fmt.Sprintf("%s (%s)", kind, config.ProfileID)
}
