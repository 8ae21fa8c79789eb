package main

import (
	"context"
	"os"

	"shoten/internal/config"
	"shoten/internal/log"
	"shoten/internal/server"
)

func main() {
	// 設定を読み込む（SHOTEN_CONFIG が指定されていればYAMLファイルも読む）
	cfg, err := config.Load(os.Getenv("SHOTEN_CONFIG"))
	if err != nil {
		log.Error("設定の読み込みに失敗しました", "error", err)
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
	if err := srv.Start(context.Background()); err != nil {
		log.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}
