// Package main はShotenサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"shoten/internal/config"
	"shoten/internal/log"
	"shoten/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイル (YAML)")
		logLevel   = flag.String("log-level", "", "ログレベル (debug, info, warn, error)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Shoten - カメラ内部パラメータから焦点距離・画角・被写体距離を配信するサーバー")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("設定の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Error("設定が不正です", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	// サーバーを作成
	srv, err := server.New(cfg)
	if err != nil {
		log.Error("サーバーの作成に失敗しました", "error", err)
		os.Exit(1)
	}

	// サーバーを起動
	log.Info("Shoten サーバーを起動します", "addr", cfg.ServerAddress(), "sources", len(cfg.Sources))
	if err := srv.Start(context.Background()); err != nil {
		log.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}
