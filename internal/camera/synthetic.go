package camera

import (
	"shoten/internal/optics"
)

// SyntheticOptions は合成ソースの設定
type SyntheticOptions struct {
	FPS           int     // フレームレート
	Count         int     // 生成するフレーム数（0 は無制限）
	SweepFrames   int     // 最短距離から無限遠までの掃引に使うフレーム数
	MaxFocalShift float64 // 最短距離での焦点距離の伸び（基準焦点距離に対する比率）
	FrameBuffer   int     // フレームチャンネルの容量
}

// SyntheticSource はレンズ位置を 0.0 から 1.0 まで繰り返し掃引するソース
//
// レンズ位置が無限遠に近づくほど焦点距離は基準焦点距離に近づき、
// 1.0 では基準焦点距離と一致する（距離は不明になる）。
type SyntheticSource struct {
	tickerSource

	opts  SyntheticOptions
	frame int
}

// NewSyntheticSource は新しいSyntheticSourceを作成する
func NewSyntheticSource(info SourceInfo, profile Profile, opts SyntheticOptions) *SyntheticSource {
	if opts.SweepFrames < 2 {
		opts.SweepFrames = 60
	}
	if opts.MaxFocalShift <= 0 {
		opts.MaxFocalShift = 0.05
	}
	info.Type = SourceTypeSynthetic

	s := &SyntheticSource{opts: opts}
	s.initBase(info, profile, opts.FrameBuffer)
	s.initTicker(opts.FPS)
	s.next = s.nextSample
	s.reset = func() { s.frame = 0 }
	return s
}

// SampleAt は n 番目（0始まり）のフレームのサンプルを返す
func (s *SyntheticSource) SampleAt(n int) optics.IntrinsicSample {
	p := s.profile
	step := n % s.opts.SweepFrames
	lens := float64(step) / float64(s.opts.SweepFrames-1)

	reference := p.Calibration.ReferenceFocalLengthPixels
	if reference == 0 {
		// 未キャリブレーションの場合は画像幅を焦点距離の目安にする
		reference = float64(p.Width)
	}
	focal := reference * (1 + s.opts.MaxFocalShift*(1-lens))

	return optics.IntrinsicSample{
		ImageWidth:   p.Width,
		ImageHeight:  p.Height,
		Matrix:       optics.NewIntrinsicMatrix(focal, focal, float64(p.Width)/2, float64(p.Height)/2),
		LensPosition: lens,
	}
}

func (s *SyntheticSource) nextSample() (optics.IntrinsicSample, bool) {
	if s.opts.Count > 0 && s.frame >= s.opts.Count {
		return optics.IntrinsicSample{}, false
	}
	sample := s.SampleAt(s.frame)
	s.frame++
	return sample, true
}
