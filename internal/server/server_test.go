package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoten/internal/config"
	"shoten/internal/optics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestConfig はテスト用の設定を作成する
func newTestConfig(sources ...config.SourceConfig) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Sources = sources
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.stopPipelines)
	return srv
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

// encodeAttachment は列ごとに16バイト境界へ揃えた float32 の行列データを作成する
func encodeAttachment(m optics.IntrinsicMatrix) []byte {
	data := make([]byte, 48)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			offset := col*16 + row*4
			binary.LittleEndian.PutUint32(data[offset:offset+4], math.Float32bits(float32(m[col][row])))
		}
	}
	return data
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	// テスト用の設定を作成
	cfg := newTestConfig(config.SourceConfig{ID: "synthetic", Type: "synthetic", FPS: 30})
	cfg.Server.Port = 0 // ランダムポートを使用

	// サーバーを作成
	srv := newTestServer(t, cfg)

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	// エラーチャンネルから結果を受信
	select {
	case err := <-errCh:
		assert.NoError(t, err, "サーバーの停止でエラーが発生しました")
	case <-time.After(3 * time.Second):
		require.FailNow(t, "サーバーの停止がタイムアウトしました")
	}
}

func TestNew_InvalidSource(t *testing.T) {
	cfg := newTestConfig(config.SourceConfig{ID: "cam0", Type: "synthetic", Profile: "tele_hd"})

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	w := doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestGetStatus(t *testing.T) {
	srv := newTestServer(t, newTestConfig(config.SourceConfig{ID: "synthetic", Type: "synthetic"}))

	w := doRequest(srv, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "127.0.0.1", status.Server.Host)
	assert.Equal(t, 1, status.Sources)
	assert.Empty(t, status.Pipelines)
}

func TestGetProfiles(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	w := doRequest(srv, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"wide_hd"`)
	assert.Contains(t, w.Body.String(), `"id":"wide_4k"`)
	assert.Contains(t, w.Body.String(), `"reference_focal_length_pixels":1383.95`)
}

func TestPostMetrics(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	body := []byte(`{
		"profile": "wide_hd",
		"sample": {
			"image_width": 1920,
			"image_height": 1080,
			"matrix": [[1400, 0, 0], [0, 1400, 0], [960, 540, 1]],
			"lens_position": 0.25
		}
	}`)

	w := doRequest(srv, http.MethodPost, "/api/metrics", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "wide_hd", res.Profile)
	assert.Equal(t, 1400.0, res.Metrics.HFocalLength)
	assert.Equal(t, 960.0, res.Metrics.HImageCenter)
	assert.Equal(t, 540.0, res.Metrics.VImageCenter)
	require.True(t, res.Metrics.SubjectDistance.Known)
	assert.InDelta(t, 0.407415, res.Metrics.SubjectDistance.Meters, 1e-6)
	assert.Equal(t, "0.41m", res.DistanceLabel)
	assert.Contains(t, res.Label, "1400.00")
}

func TestPostMetrics_UnknownDistanceIsNull(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	// profile 未指定の場合は解像度から決める
	body := []byte(`{"sample": {"image_width": 1920, "image_height": 1080,
		"matrix": [[1383.95, 0, 0], [0, 1383.95, 0], [960, 540, 1]], "lens_position": 1}}`)

	w := doRequest(srv, http.MethodPost, "/api/metrics", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"subject_distance":null`)
	assert.Contains(t, w.Body.String(), `"distance_label":"-"`)
	assert.Contains(t, w.Body.String(), `"profile":"wide_hd"`)
}

func TestPostMetrics_MatrixAttachment(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	attachment := encodeAttachment(optics.NewIntrinsicMatrix(2800, 2800, 1920, 1080))
	req := MetricsRequest{
		Profile:          "wide_4k",
		Sample:           &optics.IntrinsicSample{ImageWidth: 3840, ImageHeight: 2160, LensPosition: 0.5},
		MatrixAttachment: attachment,
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := doRequest(srv, http.MethodPost, "/api/metrics", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2800.0, res.Metrics.HFocalLength)
	assert.Equal(t, 1080.0, res.Metrics.VImageCenter)
}

func TestPostMetrics_RowMajorK(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	// k は一般的な行優先の K 行列で、sample.matrix より優先される
	body := []byte(`{
		"profile": "wide_hd",
		"k": [[1400, 0, 959.5], [0, 1401, 539.5], [0, 0, 1]],
		"sample": {"image_width": 1920, "image_height": 1080, "lens_position": 0.25}
	}`)

	w := doRequest(srv, http.MethodPost, "/api/metrics", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1400.0, res.Metrics.HFocalLength)
	assert.Equal(t, 1401.0, res.Metrics.VFocalLength)
	assert.Equal(t, 959.5, res.Metrics.HImageCenter)
	assert.Equal(t, 539.5, res.Metrics.VImageCenter)
	assert.Equal(t, [][]float64{{1400, 0, 959.5}, {0, 1401, 539.5}, {0, 0, 1}}, res.K)
}

func TestPostMetrics_NonFiniteAttachment(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	attachment := encodeAttachment(optics.NewIntrinsicMatrix(1400, 1400, 960, 540))
	binary.LittleEndian.PutUint32(attachment[0:4], math.Float32bits(float32(math.NaN())))

	body, err := json.Marshal(MetricsRequest{
		Profile:          "wide_hd",
		Sample:           &optics.IntrinsicSample{ImageWidth: 1920, ImageHeight: 1080, LensPosition: 0.5},
		MatrixAttachment: attachment,
	})
	require.NoError(t, err)

	w := doRequest(srv, http.MethodPost, "/api/metrics", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var res ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "invalid_sample", res.Error)
}

func TestPostMetrics_BadRequest(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	testCases := []struct {
		name string
		body string
	}{
		{"不正なJSON", `{"sample":`},
		{"sampleなし", `{"profile":"wide_hd"}`},
		{"幅が0", `{"profile":"wide_hd","sample":{"image_width":0,"image_height":1080,"lens_position":0.5}}`},
		{"レンズ位置が範囲外", `{"profile":"wide_hd","sample":{"image_width":1920,"image_height":1080,"lens_position":1.5}}`},
		{"未知のプロファイル", `{"profile":"tele_hd","sample":{"image_width":1920,"image_height":1080,"lens_position":0.5}}`},
		{"一致する解像度なし", `{"sample":{"image_width":640,"image_height":480,"lens_position":0.5}}`},
		{"行列の長さ不足", `{"profile":"wide_hd","matrix_attachment":"AAAA","sample":{"image_width":1920,"image_height":1080,"lens_position":0.5}}`},
		{"Kが3x3でない", `{"profile":"wide_hd","k":[[1400,0],[0,1400]],"sample":{"image_width":1920,"image_height":1080,"lens_position":0.5}}`},
		{"Kの行の長さが不揃い", `{"profile":"wide_hd","k":[[1400,0,960],[0,1400],[0,0,1]],"sample":{"image_width":1920,"image_height":1080,"lens_position":0.5}}`},
		{"Kと添付の同時指定", `{"profile":"wide_hd","k":[[1400,0,960],[0,1400,540],[0,0,1]],"matrix_attachment":"AAAA","sample":{"image_width":1920,"image_height":1080,"lens_position":0.5}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(srv, http.MethodPost, "/api/metrics", []byte(tc.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var res ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestGetSources(t *testing.T) {
	srv := newTestServer(t, newTestConfig(
		config.SourceConfig{ID: "b", Type: "synthetic"},
		config.SourceConfig{ID: "a", Type: "synthetic", Profile: "wide_4k"},
	))

	w := doRequest(srv, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sources []SourceResponse `json:"sources"`
		Types   []string         `json:"types"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"replay", "synthetic"}, body.Types)
	require.Len(t, body.Sources, 2)
	assert.Equal(t, "a", body.Sources[0].ID)
	assert.Equal(t, "wide_4k", body.Sources[0].ProfileID)
	assert.Equal(t, "wide_hd", body.Sources[1].ProfileID)
	assert.Equal(t, "inactive", string(body.Sources[1].Status))
}

func TestGetSourceMetrics(t *testing.T) {
	srv := newTestServer(t, newTestConfig(config.SourceConfig{ID: "synthetic", Type: "synthetic", FPS: 200, Count: 5}))

	// 存在しないソース
	w := doRequest(srv, http.MethodGet, "/api/sources/missing/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// まだ計測値がない
	w = doRequest(srv, http.MethodGet, "/api/sources/synthetic/metrics", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.StartPipelines(ctx))

	require.Eventually(t, func() bool {
		return doRequest(srv, http.MethodGet, "/api/sources/synthetic/metrics", nil).Code == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)

	w = doRequest(srv, http.MethodGet, "/api/sources/synthetic/metrics", nil)
	var res MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "synthetic", res.SourceID)
	assert.Equal(t, "metrics", res.Type)
	assert.Equal(t, "wide_hd", res.Profile)
	assert.Greater(t, res.Seq, uint64(0))
	assert.NotEmpty(t, res.Label)
}

func TestSourceMetricsWebSocket(t *testing.T) {
	srv := newTestServer(t, newTestConfig(config.SourceConfig{ID: "synthetic", Type: "synthetic", FPS: 100}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.StartPipelines(ctx))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sources/synthetic/metrics"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var prev uint64
	for i := 0; i < 3; i++ {
		var msg MetricsResponse
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "metrics", msg.Type)
		assert.Equal(t, "synthetic", msg.SourceID)
		assert.Greater(t, msg.Seq, prev, "同じソースの結果は順序通りに届く")
		prev = msg.Seq
	}
}

func TestSourceMetricsWebSocket_NotFound(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sources/missing/metrics"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSourceLifecycle(t *testing.T) {
	srv := newTestServer(t, newTestConfig(config.SourceConfig{ID: "synthetic", Type: "synthetic", FPS: 100}))

	decodeSource := func(w *httptest.ResponseRecorder) SourceResponse {
		t.Helper()
		var res SourceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	// 開始するとパイプラインにも接続される
	w := doRequest(srv, http.MethodPost, "/api/sources/synthetic/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "active", string(decodeSource(w).Status))
	assert.True(t, srv.hub.Attached("synthetic"))

	require.Eventually(t, func() bool {
		return doRequest(srv, http.MethodGet, "/api/sources/synthetic/metrics", nil).Code == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)

	// 二重開始
	w = doRequest(srv, http.MethodPost, "/api/sources/synthetic/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 停止
	w = doRequest(srv, http.MethodPost, "/api/sources/synthetic/stop", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "inactive", string(decodeSource(w).Status))

	// 再開始
	w = doRequest(srv, http.MethodPost, "/api/sources/synthetic/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 削除するとパイプラインと最新値も破棄される
	sub := srv.hub.Broadcaster().Subscribe("synthetic", 1)
	w = doRequest(srv, http.MethodDelete, "/api/sources/synthetic", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.False(t, srv.hub.Attached("synthetic"))
	for range sub.C() {
		// 切り離しでクローズされるまで読み捨てる
	}

	w = doRequest(srv, http.MethodGet, "/api/sources/synthetic/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(srv, http.MethodGet, "/api/sources", nil)
	assert.NotContains(t, w.Body.String(), `"id":"synthetic"`)
}

func TestSourceLifecycle_NotFound(t *testing.T) {
	srv := newTestServer(t, newTestConfig())

	testCases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/sources/missing/start"},
		{http.MethodPost, "/api/sources/missing/stop"},
		{http.MethodDelete, "/api/sources/missing"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := doRequest(srv, tc.method, tc.path, nil)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}
