// Package optics カメラ内部パラメータから光学的な計測値を導出する
//
// # 責務
// - 内部パラメータ行列から焦点距離・画像中心を取り出す
// - 画像サイズと焦点距離から画角を計算する
// - レンズの公式を使って被写体までの距離を推定する
// - 計測値を表示用の文字列に整形する
//
// # 仕様
// - ComputeMetrics は状態を持たない純粋関数で、並行に呼び出しても安全
// - 焦点距離が0などの退化した入力はエラーではなく「不明」として結果に含める
// - 行列はプラットフォームと同じ列優先で保持する（m[2][0] が cx）
// - 表示用の数値は常に小数点以下2桁で整形する
package optics
