package camera

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shoten/internal/optics"
)

// ReplayFile は記録済みサンプルのファイル形式
//
//	profile: wide_hd
//	samples:
//	  - image_width: 1920
//	    image_height: 1080
//	    lens_position: 0.8
//	    matrix: [[1390, 0, 0], [0, 1390, 0], [959.5, 539.5, 1]]
type ReplayFile struct {
	Profile string                   `yaml:"profile"` // 記録時のプロファイル（任意）
	Samples []optics.IntrinsicSample `yaml:"samples"`
}

// LoadReplayFile は記録済みサンプルを読み込む
func LoadReplayFile(path string) (*ReplayFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("再生ファイルの読み込みに失敗: %w", err)
	}

	var file ReplayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("再生ファイルの解析に失敗: %w", err)
	}
	if len(file.Samples) == 0 {
		return nil, fmt.Errorf("再生ファイルにサンプルがありません: %s", path)
	}

	return &file, nil
}

// ReplayOptions は再生ソースの設定
type ReplayOptions struct {
	FPS         int  // 再生フレームレート
	Loop        bool // 末尾に達したら先頭から繰り返す
	FrameBuffer int  // フレームチャンネルの容量
}

// ReplaySource は記録済みサンプルを順に送るソース
// 検証に失敗したサンプルは送らずにエラーチャンネルへ報告する
type ReplaySource struct {
	tickerSource

	samples []optics.IntrinsicSample
	opts    ReplayOptions
	pos     int
}

// NewReplaySource は新しいReplaySourceを作成する
func NewReplaySource(info SourceInfo, profile Profile, samples []optics.IntrinsicSample, opts ReplayOptions) *ReplaySource {
	info.Type = SourceTypeReplay

	s := &ReplaySource{
		samples: samples,
		opts:    opts,
	}
	s.initBase(info, profile, opts.FrameBuffer)
	s.initTicker(opts.FPS)
	s.next = s.nextSample
	s.reset = func() { s.pos = 0 }
	return s
}

func (s *ReplaySource) nextSample() (optics.IntrinsicSample, bool) {
	if len(s.samples) == 0 {
		return optics.IntrinsicSample{}, false
	}
	if s.pos >= len(s.samples) {
		if !s.opts.Loop {
			return optics.IntrinsicSample{}, false
		}
		s.pos = 0
	}

	sample := s.samples[s.pos]
	s.pos++
	return sample, true
}
