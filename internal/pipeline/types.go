package pipeline

import (
	"time"

	"shoten/internal/optics"
)

// Result は1フレーム分の解析結果
type Result struct {
	SourceID    string               `json:"source_id"`
	Seq         uint64               `json:"seq"`
	CapturedAt  time.Time            `json:"captured_at"`
	ProcessedAt time.Time            `json:"processed_at"`
	Metrics     optics.OpticsMetrics `json:"metrics"`
}

// Sink は解析結果の出力先
// Handle は消費ゴルーチンから呼ばれるため、ブロックしてはならない
type Sink interface {
	Handle(result Result)
}

// SinkFunc は関数をSinkとして扱うアダプター
type SinkFunc func(result Result)

// Handle は関数を呼び出す
func (f SinkFunc) Handle(result Result) {
	f(result)
}

// Stats はソースごとの処理統計
type Stats struct {
	SourceID  string    `json:"source_id"`
	Processed uint64    `json:"processed"`
	LastSeq   uint64    `json:"last_seq"`
	Produced  uint64    `json:"produced"`
	Dropped   uint64    `json:"dropped"`
	Rejected  uint64    `json:"rejected"`
	Running   bool      `json:"running"`
	UpdatedAt time.Time `json:"updated_at"`
}
