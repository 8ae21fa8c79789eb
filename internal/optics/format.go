package optics

import (
	"fmt"
	"strings"
)

// Dot2f は数値を小数点以下2桁の文字列にする
func Dot2f(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Label は計測値をプレビューに重ねる複数行のテキストに整形する
func Label(m OpticsMetrics) string {
	var b strings.Builder

	b.WriteString("■焦点距離[px]\n")
	fmt.Fprintf(&b, " h[%s] \n v[%s] \n", Dot2f(m.HFocalLength), Dot2f(m.VFocalLength))
	b.WriteString("■画像サイズ／画像中心[px]\n")
	fmt.Fprintf(&b, " h[%d]／[%s]\n", m.ImageWidth, Dot2f(m.HImageCenter))
	fmt.Fprintf(&b, " v[%d]／[%s] \n", m.ImageHeight, Dot2f(m.VImageCenter))
	b.WriteString("■レンズポジション\n")
	fmt.Fprintf(&b, " [%s] ※0.0~1.0(無限遠) \n", Dot2f(m.LensPosition))
	b.WriteString("■画角\n")
	fmt.Fprintf(&b, " h[%s]° \n v[%s]° \n", Dot2f(m.HFov), Dot2f(m.VFov))

	return b.String()
}

// DistanceLabel は被写体距離の表示用ラベルを返す（不明な場合は "-"）
func DistanceLabel(m OpticsMetrics) string {
	return m.SubjectDistance.String()
}
