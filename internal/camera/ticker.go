package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shoten/internal/optics"
)

// sampleGenerator は次のサンプルを返す。ok が false なら終端
type sampleGenerator func() (sample optics.IntrinsicSample, ok bool)

// tickerSource は一定間隔でサンプルを生成するソースの共通実装
type tickerSource struct {
	BaseSource

	interval time.Duration
	next     sampleGenerator
	reset    func()

	// 制御用
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// initTicker は生成間隔を設定する
func (s *tickerSource) initTicker(fps int) {
	if fps <= 0 {
		fps = 30
	}
	s.info.FPS = fps
	s.interval = time.Second / time.Duration(fps)
	s.stopCh = make(chan struct{})
}

// Start はサンプルの生成を開始する
func (s *tickerSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return fmt.Errorf("%w: %s", ErrSourceActive, s.info.ID)
	}
	if s.next == nil {
		s.setStatus(StatusError)
		return fmt.Errorf("ソース %s のジェネレーターが設定されていません", s.info.ID)
	}

	if s.reset != nil {
		s.reset()
	}
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.run(ctx, s.stopCh)

	s.setStatus(StatusActive)
	return nil
}

// Stop はサンプルの生成を停止する
func (s *tickerSource) Stop(_ context.Context) error {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return nil // 既に停止している
	}

	// 停止シグナルを送信
	close(s.stopCh)
	s.setStatus(StatusInactive)
	s.mu.Unlock()

	// ゴルーチンの終了を待機
	s.wg.Wait()
	return nil
}

// run は interval ごとにサンプルを生成して送る
func (s *tickerSource) run(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			s.finish(stopCh, StatusInactive)
			return
		case <-ticker.C:
			sample, ok := s.next()
			if !ok {
				s.finish(stopCh, StatusInactive)
				return
			}
			s.publish(sample)
		}
	}
}

// finish は自発的に終了したときに状態を更新する
func (s *tickerSource) finish(stopCh <-chan struct{}, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stop と競合した場合は Stop 側の状態を優先する
	select {
	case <-stopCh:
		return
	default:
	}
	s.setStatus(status)
}
