package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"shoten/internal/camera"
	"shoten/internal/log"
	"shoten/internal/optics"
)

// Runner は1つのソースのフレームを順に解析して出力先に渡す
type Runner struct {
	source      camera.Source
	calibration optics.CameraCalibration
	sinks       []Sink

	processed atomic.Uint64
	lastSeq   atomic.Uint64
	running   atomic.Bool

	mu        sync.RWMutex
	updatedAt time.Time
}

// NewRunner は新しいRunnerを作成する
func NewRunner(source camera.Source, calibration optics.CameraCalibration, sinks ...Sink) *Runner {
	return &Runner{
		source:      source,
		calibration: calibration,
		sinks:       sinks,
	}
}

// Run はコンテキストがキャンセルされるまでフレームを消費する
func (r *Runner) Run(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	sourceID := r.source.GetInfo().ID
	frameChan := r.source.GetFrameChannel()
	errorChan := r.source.GetErrorChannel()

	log.Debug("パイプラインを開始しました", "source", sourceID)
	defer log.Debug("パイプラインを終了しました", "source", sourceID)

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errorChan:
			log.Warn("ソースでエラーが発生しました", "source", sourceID, "error", err)

		case frame, ok := <-frameChan:
			if !ok {
				return
			}
			r.process(frame)
		}
	}
}

// process は1フレームを解析して全ての出力先に渡す
func (r *Runner) process(frame camera.Frame) {
	result := Result{
		SourceID:    frame.SourceID,
		Seq:         frame.Seq,
		CapturedAt:  frame.Timestamp,
		ProcessedAt: time.Now(),
		Metrics:     optics.ComputeMetrics(frame.Sample, r.calibration),
	}

	for _, sink := range r.sinks {
		sink.Handle(result)
	}

	r.processed.Add(1)
	r.lastSeq.Store(frame.Seq)

	r.mu.Lock()
	r.updatedAt = result.ProcessedAt
	r.mu.Unlock()
}

// Stats は処理統計を返す
func (r *Runner) Stats() Stats {
	sourceStats := r.source.GetStats()

	r.mu.RLock()
	updatedAt := r.updatedAt
	r.mu.RUnlock()

	return Stats{
		SourceID:  r.source.GetInfo().ID,
		Processed: r.processed.Load(),
		LastSeq:   r.lastSeq.Load(),
		Produced:  sourceStats.Produced,
		Dropped:   sourceStats.Dropped,
		Rejected:  sourceStats.Rejected,
		Running:   r.running.Load(),
		UpdatedAt: updatedAt,
	}
}
