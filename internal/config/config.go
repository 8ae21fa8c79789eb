package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shoten/internal/camera"
	"shoten/internal/optics"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	Profiles []ProfileConfig `yaml:"profiles"`
	Pipeline PipelineConfig  `yaml:"pipeline"`
	Sources  []SourceConfig  `yaml:"sources"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// LogConfig はログの設定
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProfileConfig はキャリブレーションプロファイルの設定
type ProfileConfig struct {
	ID                         string  `yaml:"id"`
	Name                       string  `yaml:"name"`
	Width                      int     `yaml:"width"`
	Height                     int     `yaml:"height"`
	PixelSizeMeters            float64 `yaml:"pixel_size_meters"`             // 画素ピッチ [m]
	ReferenceFocalLengthPixels float64 `yaml:"reference_focal_length_pixels"` // 無限遠の焦点距離 [px]
}

// PipelineConfig は解析パイプラインの設定
type PipelineConfig struct {
	QueueSize        int `yaml:"queue_size"`        // ソースのフレームチャンネル容量
	SubscriberBuffer int `yaml:"subscriber_buffer"` // WebSocket購読者ごとのバッファ
}

// SourceConfig は個別ソースの設定
type SourceConfig struct {
	ID      string `yaml:"id"`      // ソースID（空の場合は自動採番）
	Name    string `yaml:"name"`    // 表示名
	Type    string `yaml:"type"`    // replay または synthetic
	Profile string `yaml:"profile"` // プロファイルID（空の場合はデフォルト）
	Path    string `yaml:"path"`    // 再生ファイル
	FPS     int    `yaml:"fps"`
	Count   int    `yaml:"count"` // 生成フレーム数（0 は無制限）
	Loop    bool   `yaml:"loop"`  // 繰り返し再生
}

// Default はデフォルト設定を返す
func Default() *Config {
	profiles := make([]ProfileConfig, 0, 2)
	for _, p := range camera.DefaultProfiles() {
		profiles = append(profiles, ProfileConfig{
			ID:                         p.ID,
			Name:                       p.Name,
			Width:                      p.Width,
			Height:                     p.Height,
			PixelSizeMeters:            p.Calibration.PixelSizeMeters,
			ReferenceFocalLengthPixels: p.Calibration.ReferenceFocalLengthPixels,
		})
	}

	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Log: LogConfig{
			Level: "info",
		},
		Profiles: profiles,
		Pipeline: PipelineConfig{
			QueueSize:        4,
			SubscriberBuffer: 16,
		},
		Sources: []SourceConfig{
			{
				ID:   "synthetic",
				Name: "合成スイープ",
				Type: string(camera.SourceTypeSynthetic),
				FPS:  30,
			},
		},
	}
}

// Load は設定を読み込む
// デフォルト値 → 設定ファイル（path が空でなければ） → 環境変数 の順に適用する
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの値で上書きする
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 %s: %w", path, err)
	}

	return nil
}

// applyEnv は環境変数の値で上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Log.Level = getEnvOrDefault("SHOTEN_LOG_LEVEL", c.Log.Level)

	// SHOTEN_PROFILE はプロファイル未指定のソースに適用する
	if profile := os.Getenv("SHOTEN_PROFILE"); profile != "" {
		for i := range c.Sources {
			if c.Sources[i].Profile == "" {
				c.Sources[i].Profile = profile
			}
		}
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("タイムアウトに負の値は指定できません")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("無効なログレベル: %s", c.Log.Level)
	}

	if len(c.Profiles) == 0 {
		return errors.New("プロファイルが設定されていません")
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}

	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("無効なキューサイズ: %d", c.Pipeline.QueueSize)
	}
	if c.Pipeline.SubscriberBuffer < 1 {
		return fmt.Errorf("無効な購読バッファ: %d", c.Pipeline.SubscriberBuffer)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		switch camera.SourceType(src.Type) {
		case camera.SourceTypeSynthetic:
		case camera.SourceTypeReplay:
			if src.Path == "" {
				return fmt.Errorf("sources[%d]: 再生ソースには path が必要です", i)
			}
		default:
			return fmt.Errorf("sources[%d]: 無効なソースタイプ: %q", i, src.Type)
		}
		if src.FPS < 0 || src.Count < 0 {
			return fmt.Errorf("sources[%d]: fps と count に負の値は指定できません", i)
		}
		if src.ID != "" {
			if seen[src.ID] {
				return fmt.Errorf("sources[%d]: ソースIDが重複しています: %s", i, src.ID)
			}
			seen[src.ID] = true
		}
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Catalog は設定されたプロファイルからCatalogを作成する
func (c *Config) Catalog() (*camera.Catalog, error) {
	profiles := make([]camera.Profile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		profiles = append(profiles, camera.Profile{
			ID:     p.ID,
			Name:   p.Name,
			Width:  p.Width,
			Height: p.Height,
			Calibration: optics.CameraCalibration{
				PixelSizeMeters:            p.PixelSizeMeters,
				ReferenceFocalLengthPixels: p.ReferenceFocalLengthPixels,
			},
		})
	}

	catalog, err := camera.NewCatalog(profiles...)
	if err != nil {
		return nil, fmt.Errorf("プロファイルの設定が無効: %w", err)
	}
	return catalog, nil
}

// DefaultProfileID はソースがプロファイルを指定しない場合に使うID
func (c *Config) DefaultProfileID() string {
	if len(c.Profiles) == 0 {
		return ""
	}
	return c.Profiles[0].ID
}

// SourceConfigs はソース設定をcamera.SourceConfigに変換する
func (c *Config) SourceConfigs() []camera.SourceConfig {
	configs := make([]camera.SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		profile := src.Profile
		if profile == "" {
			profile = c.DefaultProfileID()
		}
		configs = append(configs, camera.SourceConfig{
			ID:          src.ID,
			Name:        src.Name,
			Type:        camera.SourceType(src.Type),
			ProfileID:   profile,
			Path:        src.Path,
			FPS:         src.FPS,
			Count:       src.Count,
			Loop:        src.Loop,
			FrameBuffer: c.Pipeline.QueueSize,
		})
	}
	return configs
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
