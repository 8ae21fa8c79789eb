// Package camera 内部パラメータを届けるサンプルソースを管理する
//
// # 責務
// - 解像度ごとのキャリブレーションプロファイルの管理
// - フレームごとの内部パラメータ（IntrinsicSample）を生成するソースの提供
// - ソースの動的な追加・削除と開始・停止
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 記録済みのサンプルを再生して計測値を確認したい
// - 実機なしでレンズ位置を掃引したサンプルを流したい
// - 複数のソースを実行時に追加・削除したい
//
// # 仕様
// - Source: サンプルを Frame として有界チャンネルに送る
// - チャンネルが満杯の場合は最も古いフレームを破棄する（遅延フレームの破棄）
// - 破棄は統計として数えるだけで、全フレームの配信は保証しない
// - Manager: 複数ソースの統合管理（ID は uuid で採番）
// - Catalog: 解像度プリセットごとのキャリブレーション値
// - Thread-safe な操作をサポート
package camera
