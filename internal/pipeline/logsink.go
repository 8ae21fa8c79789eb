package pipeline

import (
	"log/slog"

	"shoten/internal/log"
	"shoten/internal/optics"
)

// LogSink は解析結果をデバッグログに出力する
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink は新しいLogSinkを作成する
func NewLogSink() *LogSink {
	return &LogSink{logger: log.With("component", "pipeline")}
}

// Handle は結果を1行で記録する
func (s *LogSink) Handle(result Result) {
	m := result.Metrics
	s.logger.Debug("計測値",
		"source", result.SourceID,
		"seq", result.Seq,
		"focal", optics.Dot2f(m.HFocalLength),
		"lens", optics.Dot2f(m.LensPosition),
		"h_fov", optics.Dot2f(m.HFov),
		"v_fov", optics.Dot2f(m.VFov),
		"distance", optics.DistanceLabel(m),
	)
}
