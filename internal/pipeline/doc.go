// Package pipeline は、ソースから届くサンプルを解析して各出力先に配信します。
//
// 責務:
//   - ソースのフレームチャンネルの消費（ソースごとに1ゴルーチン）
//   - optics.ComputeMetrics による計測値の算出
//   - 最新値の保持とWebSocket購読者への配信
//
// 仕様:
//   - ソース側のチャンネルは古いフレームから破棄されるため、全フレームの配信は保証しない
//   - 1ソース内では受信した順序のまま出力先に渡す
//   - 購読者ごとのバッファも満杯時は古い結果を破棄する
package pipeline
