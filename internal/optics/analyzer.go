package optics

import "math"

// ComputeMetrics はサンプルとキャリブレーションから計測値を計算する
// 入力は変更せず、同じ入力には常に同じ結果を返す
func ComputeMetrics(sample IntrinsicSample, calibration CameraCalibration) OpticsMetrics {
	m := sample.Matrix
	hFocal := m[0][0]
	vFocal := m[1][1]

	return OpticsMetrics{
		ImageWidth:      sample.ImageWidth,
		ImageHeight:     sample.ImageHeight,
		LensPosition:    sample.LensPosition,
		HFocalLength:    hFocal,
		VFocalLength:    vFocal,
		HImageCenter:    m[2][0],
		VImageCenter:    m[2][1],
		HFov:            FieldOfView(sample.ImageWidth, hFocal),
		VFov:            FieldOfView(sample.ImageHeight, vFocal),
		SubjectDistance: SubjectDistance(calibration, hFocal),
	}
}

// FieldOfView は画像サイズと焦点距離から画角を度で返す
// 焦点距離が0の場合は極限値の180度になる
func FieldOfView(size int, focalLength float64) float64 {
	return math.Atan((float64(size)/2.0)/focalLength) * 180.0 / math.Pi * 2.0
}

// SubjectDistance はレンズの公式から被写体までの距離を推定する
//
// f は無限遠合焦時の焦点距離、b は現在のレンズ位置での焦点距離（いずれもピクセル換算）。
// f と b が等しい、またはどちらかが0の場合は距離を決められないため不明を返す。
// 結果が有限の値にならない場合も不明を返す。
func SubjectDistance(calibration CameraCalibration, currentFocalLength float64) Distance {
	f := calibration.ReferenceFocalLengthPixels
	b := currentFocalLength
	if f == 0 || b == 0 || f == b {
		return UnknownDistance()
	}

	a := 1 / (1.0/f - 1.0/b)
	meters := a * calibration.PixelSizeMeters
	// f と b が近すぎて差が0に丸められた場合も不明とする
	if math.IsInf(meters, 0) || math.IsNaN(meters) {
		return UnknownDistance()
	}
	return KnownDistance(meters)
}
