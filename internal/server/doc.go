// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// WebSocket接続の管理、計測値の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 設定からのソース登録とパイプラインの接続
//   - WebSocket接続の確立と管理
//   - クライアントからのリクエスト処理
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
//   - 数値は JSON では生の値、ラベルでは小数点以下2桁で返す
package server
