// Package log はアプリケーション全体で使う構造化ロガーを提供する
// log/slog を薄くラップし、レベルと出力形式を環境に合わせて切り替える
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex
)

// ParseLevel はレベル名を slog.Level に変換する
// 有効な値: "debug", "info", "warn", "error"（それ以外は info）
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init はグローバルロガーを指定レベルで初期化する
// SHOTEN_ENV=production の場合は JSON、それ以外はテキストで出力する
func Init(level string) {
	InitWithWriter(level, os.Stdout)
}

// InitWithWriter は出力先を指定してグローバルロガーを初期化する
func InitWithWriter(level string, w io.Writer) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var l *slog.Logger
	if os.Getenv("SHOTEN_ENV") == "production" {
		l = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		l = slog.New(slog.NewTextHandler(w, opts))
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// L はグローバルロガーを返す
func L() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Init("info")
		return L()
	}
	return l
}

// Debug は debug レベルで出力する
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info は info レベルで出力する
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn は warn レベルで出力する
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error は error レベルで出力する
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With は属性付きのロガーを返す
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
