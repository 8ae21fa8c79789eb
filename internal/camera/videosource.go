package camera

import (
	"sync"
	"sync/atomic"
	"time"

	"shoten/internal/optics"
)

// SourceType はソースタイプを定義
type SourceType string

const (
	// SourceTypeReplay は記録済みサンプルの再生ソースを表す
	SourceTypeReplay SourceType = "replay"
	// SourceTypeSynthetic はレンズ位置を掃引する合成ソースを表す
	SourceTypeSynthetic SourceType = "synthetic"
)

// デフォルトのチャンネル容量
const (
	defaultFrameBuffer = 4
	defaultErrorBuffer = 5
)

// SourceInfo はソース情報を表す
type SourceInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	ProfileID string     `json:"profile_id"`
	FPS       int        `json:"fps"`
	Status    Status     `json:"status"`
}

// BaseSource は共通実装を提供
type BaseSource struct {
	info      SourceInfo
	profile   Profile
	frameChan chan Frame
	errorChan chan error
	status    Status
	mu        sync.RWMutex

	seq      uint64
	produced atomic.Uint64
	dropped  atomic.Uint64
	rejected atomic.Uint64
}

// initBase は共通フィールドを初期化する
func (b *BaseSource) initBase(info SourceInfo, profile Profile, frameBuffer int) {
	if frameBuffer <= 0 {
		frameBuffer = defaultFrameBuffer
	}
	info.ProfileID = profile.ID
	info.Status = StatusInactive

	b.info = info
	b.profile = profile
	b.frameChan = make(chan Frame, frameBuffer)
	b.errorChan = make(chan error, defaultErrorBuffer)
	b.status = StatusInactive
}

// GetInfo は基本情報を返す
func (b *BaseSource) GetInfo() SourceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info := b.info
	info.Status = b.status
	return info
}

// GetStatus はステータスを返す
func (b *BaseSource) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// GetStats は配信統計を返す
func (b *BaseSource) GetStats() SourceStats {
	return SourceStats{
		Produced: b.produced.Load(),
		Dropped:  b.dropped.Load(),
		Rejected: b.rejected.Load(),
	}
}

// GetFrameChannel はフレームチャンネルを返す
func (b *BaseSource) GetFrameChannel() <-chan Frame {
	return b.frameChan
}

// GetErrorChannel はエラーチャンネルを返す
func (b *BaseSource) GetErrorChannel() <-chan error {
	return b.errorChan
}

// Profile はソースに紐づくプロファイルを返す
func (b *BaseSource) Profile() Profile {
	return b.profile
}

// publish はサンプルを検証してフレームとして送る
// 送信ゴルーチンは1ソースにつき1つである前提
func (b *BaseSource) publish(sample optics.IntrinsicSample) {
	if err := sample.Validate(); err != nil {
		b.rejected.Add(1)
		b.reportError(err)
		return
	}

	b.seq++
	frame := Frame{
		SourceID:  b.info.ID,
		Seq:       b.seq,
		Timestamp: time.Now(),
		Sample:    sample,
	}
	b.produced.Add(1)

	select {
	case b.frameChan <- frame:
		return
	default:
	}

	// チャンネルがフルの場合は古いフレームを破棄
	select {
	case <-b.frameChan:
		b.dropped.Add(1)
	default:
	}
	select {
	case b.frameChan <- frame:
	default:
		// 受信側と競合して再び満杯になった場合は新しいフレームを諦める
		b.dropped.Add(1)
	}
}

// reportError はエラーを送る（満杯の場合は古いエラーを破棄）
func (b *BaseSource) reportError(err error) {
	select {
	case b.errorChan <- err:
		return
	default:
	}
	select {
	case <-b.errorChan:
	default:
	}
	select {
	case b.errorChan <- err:
	default:
	}
}

func (b *BaseSource) setStatus(status Status) {
	b.status = status
	b.info.Status = status
}
