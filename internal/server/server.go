package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"shoten/internal/camera"
	"shoten/internal/config"
	"shoten/internal/log"
	"shoten/internal/pipeline"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	catalog    *camera.Catalog
	factory    camera.SourceFactory
	manager    camera.Manager
	hub        *pipeline.Hub
	router     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startedAt  time.Time

	pipelineOnce sync.Once
	pipelineErr  error

	// ソースとパイプラインの寿命を決めるコンテキスト
	runMu  sync.RWMutex
	runCtx context.Context
}

// New は新しいServerインスタンスを作成する
// 設定されたソースはここで登録され、StartPipelines で動作を開始する
func New(cfg *config.Config) (*Server, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	factory := camera.NewSourceFactory(catalog)
	manager := camera.NewDefaultSourceManager(factory)
	for _, sourceConfig := range cfg.SourceConfigs() {
		if _, err := manager.AddSource(context.Background(), sourceConfig); err != nil {
			return nil, fmt.Errorf("ソースの登録に失敗: %w", err)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		config:  cfg,
		catalog: catalog,
		factory: factory,
		manager: manager,
		hub:     pipeline.NewHub(pipeline.NewLogSink()),
		router:  router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 表示用クライアントはどのオリジンからでも接続できる
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
		runCtx:    context.Background(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.router.GET("/health", s.HealthCheck)

	// APIエンドポイント
	api := s.router.Group("/api")
	api.GET("/status", s.GetStatus)
	api.GET("/profiles", s.GetProfiles)
	api.POST("/metrics", s.PostMetrics)
	api.GET("/sources", s.GetSources)
	api.DELETE("/sources/:id", s.DeleteSource)
	api.POST("/sources/:id/start", s.StartSource)
	api.POST("/sources/:id/stop", s.StopSource)
	api.GET("/sources/:id/metrics", s.GetSourceMetrics)

	// WebSocketエンドポイント
	s.router.GET("/ws/sources/:id/metrics", s.SourceMetricsWebSocket)
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartPipelines は登録済みの全ソースをパイプラインに接続して開始する
// ctx がキャンセルされるとソースとパイプラインも停止する
func (s *Server) StartPipelines(ctx context.Context) error {
	s.pipelineOnce.Do(func() {
		s.runMu.Lock()
		s.runCtx = ctx
		s.runMu.Unlock()

		for _, info := range s.manager.GetSources() {
			if err := s.attachSource(info.ID); err != nil {
				s.pipelineErr = err
				return
			}
		}

		if err := s.manager.Start(ctx); err != nil {
			s.pipelineErr = fmt.Errorf("ソースの開始に失敗: %w", err)
		}
	})
	return s.pipelineErr
}

// runContext はソースとパイプラインに渡すコンテキストを返す
func (s *Server) runContext() context.Context {
	s.runMu.RLock()
	defer s.runMu.RUnlock()
	return s.runCtx
}

// attachSource はソースがまだパイプラインに接続されていなければ接続する
func (s *Server) attachSource(id string) error {
	if s.hub.Attached(id) {
		return nil
	}

	source, exists := s.manager.GetSource(id)
	if !exists {
		return fmt.Errorf("%w: %s", camera.ErrSourceNotFound, id)
	}
	profile, err := s.catalog.Get(source.GetInfo().ProfileID)
	if err != nil {
		return err
	}

	// 同時に接続された場合は先に接続した方を使う
	if err := s.hub.Attach(s.runContext(), source, profile); err != nil && !errors.Is(err, pipeline.ErrAlreadyAttached) {
		return err
	}
	return nil
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.StartPipelines(runCtx); err != nil {
		return err
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Info("HTTPサーバーを起動しています", "addr", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Info("シグナルを受信しました", "signal", sig.String())
	case err := <-shutdownCh:
		s.stopPipelines()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Info("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// WebSocket接続はハイジャックされているため、先に購読を閉じる
	s.stopPipelines()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// stopPipelines はパイプラインとソースを停止する
func (s *Server) stopPipelines() {
	s.hub.Stop()
	if err := s.manager.Stop(context.Background()); err != nil {
		log.Warn("ソースの停止に失敗しました", "error", err)
	}
}

// requestLogger はリクエストを構造化ログに記録するミドルウェア
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("リクエスト",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
