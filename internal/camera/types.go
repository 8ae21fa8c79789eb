package camera

import (
	"context"
	"errors"
	"time"

	"shoten/internal/optics"
)

// Status はソースの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // ソースは停止中
	StatusActive   Status = "active"   // ソースは動作中
	StatusError    Status = "error"    // ソースでエラーが発生
)

var (
	// ErrSourceNotFound は指定されたIDのソースが存在しない
	ErrSourceNotFound = errors.New("ソースが見つかりません")
	// ErrProfileNotFound は指定されたIDのプロファイルが存在しない
	ErrProfileNotFound = errors.New("プロファイルが見つかりません")
	// ErrSourceActive はソースが既に動作中
	ErrSourceActive = errors.New("ソースは既に開始されています")
)

// Frame はソースから届く1フレーム分の読み出し値
type Frame struct {
	SourceID  string                 // 送信元ソースID
	Seq       uint64                 // ソース内の通し番号（1始まり）
	Timestamp time.Time              // 生成時刻
	Sample    optics.IntrinsicSample // 内部パラメータ
}

// SourceStats はソースの配信統計
type SourceStats struct {
	Produced uint64 `json:"produced"` // 生成したフレーム数
	Dropped  uint64 `json:"dropped"`  // 満杯のため破棄したフレーム数
	Rejected uint64 `json:"rejected"` // 検証に失敗して送らなかったサンプル数
}

// Source はサンプルを生成する全てのソースを統一するインターフェース
type Source interface {
	// 基本操作
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// ストリーミング
	GetFrameChannel() <-chan Frame
	GetErrorChannel() <-chan error

	// メタデータ
	GetInfo() SourceInfo
	GetStatus() Status
	GetStats() SourceStats
}

// Manager はソースの動的管理を担うインターフェース
type Manager interface {
	// Start は登録済みの全ソースを開始する
	Start(ctx context.Context) error

	// Stop は全ソースを停止する
	Stop(ctx context.Context) error

	// GetSources は現在管理されているソース一覧を取得する
	GetSources() []SourceInfo

	// GetSource は指定されたIDのソースを取得する
	GetSource(id string) (Source, bool)

	// AddSource はソースを動的に追加する
	AddSource(ctx context.Context, config SourceConfig) (Source, error)

	// RemoveSource はソースを削除する
	RemoveSource(ctx context.Context, id string) error

	// StartSource はソースを開始する
	StartSource(ctx context.Context, id string) error

	// StopSource はソースを停止する
	StopSource(ctx context.Context, id string) error
}
