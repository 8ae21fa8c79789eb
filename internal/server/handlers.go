package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"shoten/internal/camera"
	"shoten/internal/log"
	"shoten/internal/optics"
	"shoten/internal/pipeline"
)

// WebSocketの送受信タイミング
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はサーバー情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態の応答
type StatusResponse struct {
	Status      string           `json:"status"`
	Server      ServerInfo       `json:"server"`
	Sources     int              `json:"sources"`
	Subscribers int              `json:"subscribers"`
	Pipelines   []pipeline.Stats `json:"pipelines"`
	Uptime      string           `json:"uptime"`
	Timestamp   time.Time        `json:"timestamp"`
}

// MetricsRequest は計測値計算の要求
// k または matrix_attachment が指定された場合は sample.matrix より優先する（同時指定は不可）
type MetricsRequest struct {
	Sample           *optics.IntrinsicSample `json:"sample"`
	Profile          string                  `json:"profile"`
	K                [][]float64             `json:"k,omitempty"`                 // 行優先の K 行列
	MatrixAttachment []byte                  `json:"matrix_attachment,omitempty"` // base64 の matrix_float3x3
}

// MetricsResponse は計測値の応答。WebSocketのメッセージとしても使う
type MetricsResponse struct {
	Type          string               `json:"type,omitempty"`
	SourceID      string               `json:"source_id,omitempty"`
	Seq           uint64               `json:"seq,omitempty"`
	CapturedAt    *time.Time           `json:"captured_at,omitempty"`
	Profile       string               `json:"profile"`
	K             [][]float64          `json:"k,omitempty"` // 計算に使った行優先の K 行列
	Metrics       optics.OpticsMetrics `json:"metrics"`
	Label         string               `json:"label"`
	DistanceLabel string               `json:"distance_label"`
}

// SourceResponse はソース情報と配信統計
type SourceResponse struct {
	camera.SourceInfo
	Stats camera.SourceStats `json:"stats"`
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (s *Server) GetStatus(c *gin.Context) {
	response := StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Sources:     len(s.manager.GetSources()),
		Subscribers: s.hub.Broadcaster().Count(),
		Pipelines:   s.hub.AllStats(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp:   time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetProfiles はプロファイル一覧取得エンドポイントの実装
func (s *Server) GetProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": s.catalog.List(),
	})
}

// PostMetrics は1サンプルから計測値を計算するエンドポイントの実装
func (s *Server) PostMetrics(c *gin.Context) {
	var req MetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "リクエストの形式が不正です", err)
		return
	}
	if req.Sample == nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "sample が指定されていません", nil)
		return
	}

	sample := *req.Sample
	switch {
	case len(req.K) > 0 && len(req.MatrixAttachment) > 0:
		respondError(c, http.StatusBadRequest, "invalid_request", "k と matrix_attachment は同時に指定できません", nil)
		return
	case len(req.K) > 0:
		matrix, err := optics.MatrixFromRows(req.K)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_matrix", "内部パラメータ行列を読み込めません", err)
			return
		}
		sample.Matrix = matrix
	case len(req.MatrixAttachment) > 0:
		matrix, err := optics.DecodeMatrixAttachment(req.MatrixAttachment)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_attachment", "内部パラメータ行列を読み込めません", err)
			return
		}
		sample.Matrix = matrix
	}

	if err := sample.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_sample", "サンプルが不正です", err)
		return
	}

	profile, err := s.resolveProfile(req.Profile, sample)
	if err != nil {
		respondError(c, http.StatusBadRequest, "profile_not_found", "プロファイルが見つかりません", err)
		return
	}

	metrics := optics.ComputeMetrics(sample, profile.Calibration)
	response := newMetricsResponse(profile.ID, metrics)
	response.K = sample.Matrix.Rows()
	c.JSON(http.StatusOK, response)
}

// GetSources はソース一覧取得エンドポイントの実装
func (s *Server) GetSources(c *gin.Context) {
	infos := s.manager.GetSources()
	sources := make([]SourceResponse, 0, len(infos))

	for _, info := range infos {
		if source, exists := s.manager.GetSource(info.ID); exists {
			sources = append(sources, newSourceResponse(source))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"types":   s.factory.GetSupportedTypes(),
	})
}

// StartSource はソースの開始エンドポイントの実装
// パイプラインに未接続であれば接続してから開始する
func (s *Server) StartSource(c *gin.Context) {
	sourceID := c.Param("id")

	source, found := s.manager.GetSource(sourceID)
	if !found {
		respondSourceNotFound(c, sourceID)
		return
	}

	if err := s.attachSource(sourceID); err != nil {
		respondError(c, http.StatusInternalServerError, "pipeline_error", "パイプラインに接続できません", err)
		return
	}

	// リクエストではなくサーバーのコンテキストで動かす
	if err := s.manager.StartSource(s.runContext(), sourceID); err != nil {
		switch {
		case errors.Is(err, camera.ErrSourceActive):
			respondError(c, http.StatusConflict, "source_active", "ソースは既に動作中です", err)
		case errors.Is(err, camera.ErrSourceNotFound):
			respondSourceNotFound(c, sourceID)
		default:
			respondError(c, http.StatusInternalServerError, "source_error", "ソースを開始できません", err)
		}
		return
	}

	log.Info("ソースを開始しました", "source", sourceID)
	c.JSON(http.StatusOK, newSourceResponse(source))
}

// StopSource はソースの停止エンドポイントの実装
// パイプラインは接続したままにして、再開時に同じ購読者へ配信を続ける
func (s *Server) StopSource(c *gin.Context) {
	sourceID := c.Param("id")

	source, found := s.manager.GetSource(sourceID)
	if !found {
		respondSourceNotFound(c, sourceID)
		return
	}

	if err := s.manager.StopSource(c.Request.Context(), sourceID); err != nil {
		if errors.Is(err, camera.ErrSourceNotFound) {
			respondSourceNotFound(c, sourceID)
			return
		}
		respondError(c, http.StatusInternalServerError, "source_error", "ソースを停止できません", err)
		return
	}

	log.Info("ソースを停止しました", "source", sourceID)
	c.JSON(http.StatusOK, newSourceResponse(source))
}

// DeleteSource はソースの削除エンドポイントの実装
// パイプラインから切り離し、購読者の接続も閉じる
func (s *Server) DeleteSource(c *gin.Context) {
	sourceID := c.Param("id")

	if _, found := s.manager.GetSource(sourceID); !found {
		respondSourceNotFound(c, sourceID)
		return
	}

	if err := s.hub.Detach(sourceID); err != nil && !errors.Is(err, camera.ErrSourceNotFound) {
		respondError(c, http.StatusInternalServerError, "pipeline_error", "パイプラインから切り離せません", err)
		return
	}

	if err := s.manager.RemoveSource(c.Request.Context(), sourceID); err != nil {
		if errors.Is(err, camera.ErrSourceNotFound) {
			respondSourceNotFound(c, sourceID)
			return
		}
		respondError(c, http.StatusInternalServerError, "source_error", "ソースを削除できません", err)
		return
	}

	log.Info("ソースを削除しました", "source", sourceID)
	c.Status(http.StatusNoContent)
}

// GetSourceMetrics はソースの最新計測値取得エンドポイントの実装
func (s *Server) GetSourceMetrics(c *gin.Context) {
	sourceID := c.Param("id")

	source, found := s.manager.GetSource(sourceID)
	if !found {
		respondSourceNotFound(c, sourceID)
		return
	}

	result, exists := s.hub.Store().Get(sourceID)
	if !exists {
		// まだ1フレームも処理されていない
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, newResultResponse(source.GetInfo().ProfileID, result))
}

// SourceMetricsWebSocket はソースの計測値をWebSocketで配信する
func (s *Server) SourceMetricsWebSocket(c *gin.Context) {
	sourceID := c.Param("id")

	source, found := s.manager.GetSource(sourceID)
	if !found {
		respondSourceNotFound(c, sourceID)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade が応答を書き込み済み
		log.Warn("WebSocketのアップグレードに失敗しました", "source", sourceID, "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Broadcaster().Subscribe(sourceID, s.config.Pipeline.SubscriberBuffer)
	defer s.hub.Broadcaster().Unsubscribe(sub.ID)

	logger := log.With("source", sourceID, "subscriber", sub.ID)
	logger.Info("WebSocketクライアントが接続しました")
	defer logger.Info("WebSocketクライアントが切断しました")

	profileID := source.GetInfo().ProfileID

	// 接続直後に最新値を送る
	var lastSeq uint64
	if latest, exists := s.hub.Store().Get(sourceID); exists {
		if err := writeJSON(conn, newResultResponse(profileID, latest)); err != nil {
			return
		}
		lastSeq = latest.Seq
	}

	// クライアントからの切断を検知する
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return

		case result, ok := <-sub.C():
			if !ok {
				// ソースが切り離された
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "source detached"),
					time.Now().Add(writeWait))
				return
			}
			// 最新値として送信済みの結果は送らない
			if result.Seq <= lastSeq {
				continue
			}
			if err := writeJSON(conn, newResultResponse(profileID, result)); err != nil {
				logger.Debug("WebSocketへの書き込みに失敗しました", "error", err)
				return
			}
			lastSeq = result.Seq

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// ヘルパー関数

// resolveProfile はIDまたは画像サイズからプロファイルを決める
func (s *Server) resolveProfile(id string, sample optics.IntrinsicSample) (camera.Profile, error) {
	if id != "" {
		return s.catalog.Get(id)
	}
	if profile, ok := s.catalog.ForResolution(sample.ImageWidth, sample.ImageHeight); ok {
		return profile, nil
	}
	return camera.Profile{}, fmt.Errorf("%w: %dx%d に一致するプロファイルがありません",
		camera.ErrProfileNotFound, sample.ImageWidth, sample.ImageHeight)
}

// newSourceResponse はソース情報と配信統計から応答を作成する
func newSourceResponse(source camera.Source) SourceResponse {
	return SourceResponse{
		SourceInfo: source.GetInfo(),
		Stats:      source.GetStats(),
	}
}

// newMetricsResponse は計測値とラベルから応答を作成する
func newMetricsResponse(profileID string, metrics optics.OpticsMetrics) MetricsResponse {
	return MetricsResponse{
		Profile:       profileID,
		Metrics:       metrics,
		Label:         optics.Label(metrics),
		DistanceLabel: optics.DistanceLabel(metrics),
	}
}

// newResultResponse はパイプラインの結果から応答を作成する
func newResultResponse(profileID string, result pipeline.Result) MetricsResponse {
	response := newMetricsResponse(profileID, result.Metrics)
	response.Type = "metrics"
	response.SourceID = result.SourceID
	response.Seq = result.Seq
	capturedAt := result.CapturedAt
	response.CapturedAt = &capturedAt
	return response
}

// writeJSON は書き込み期限付きでJSONメッセージを送る
func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// respondSourceNotFound はソースが存在しない場合の応答を返す
func respondSourceNotFound(c *gin.Context, sourceID string) {
	respondError(c, http.StatusNotFound, "source_not_found", "指定されたソースが見つかりません",
		fmt.Errorf("%w: %s", camera.ErrSourceNotFound, sourceID))
}

// respondError はエラー応答を返す
func respondError(c *gin.Context, status int, code, message string, err error) {
	response := ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err != nil {
		response.Details = err.Error()
	}

	log.Debug("リクエストを拒否しました", "path", c.FullPath(), "status", status, "error", err)
	c.JSON(status, response)
}
