package optics

import (
	"encoding/json"
	"fmt"
	"math"
)

// CameraCalibration は解像度・デバイスごとに固定されるキャリブレーション値
type CameraCalibration struct {
	PixelSizeMeters            float64 `json:"pixel_size_meters" yaml:"pixel_size_meters"`                         // 画素ピッチ [m]
	ReferenceFocalLengthPixels float64 `json:"reference_focal_length_pixels" yaml:"reference_focal_length_pixels"` // 無限遠合焦時の焦点距離 [px]
}

// IntrinsicMatrix はカメラ内部パラメータ行列
// 最初の添字が列を表す列優先の配置: [[fx,0,0],[0,fy,0],[cx,cy,1]]
type IntrinsicMatrix [3][3]float64

// IntrinsicSample は1フレーム分の内部パラメータの読み出し値
type IntrinsicSample struct {
	ImageWidth   int             `json:"image_width" yaml:"image_width"`     // 水平画像サイズ
	ImageHeight  int             `json:"image_height" yaml:"image_height"`   // 垂直画像サイズ
	Matrix       IntrinsicMatrix `json:"matrix" yaml:"matrix"`               // カメラ内部パラメータ
	LensPosition float64         `json:"lens_position" yaml:"lens_position"` // 0.0(最短距離)~1.0(無限遠)
}

// Validate はサンプルが計算の前提を満たしているか検証する
// ComputeMetrics 自身は検証しないため、呼び出し側の境界で使う
func (s IntrinsicSample) Validate() error {
	if s.ImageWidth <= 0 {
		return fmt.Errorf("無効な画像幅: %d", s.ImageWidth)
	}
	if s.ImageHeight <= 0 {
		return fmt.Errorf("無効な画像高さ: %d", s.ImageHeight)
	}
	// NaN は比較が常に false になるため範囲内であることを確認する
	if !(s.LensPosition >= 0 && s.LensPosition <= 1) {
		return fmt.Errorf("無効なレンズポジション: %v", s.LensPosition)
	}
	for col := range s.Matrix {
		for row, v := range s.Matrix[col] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("内部パラメータ行列に有限でない値があります: [%d][%d]=%v", col, row, v)
			}
		}
	}
	return nil
}

// Distance は推定された被写体距離。Known が false の場合は不明を表す
type Distance struct {
	Meters float64
	Known  bool
}

// UnknownDistance は不明な距離を返す
func UnknownDistance() Distance {
	return Distance{}
}

// KnownDistance は確定した距離を返す
func KnownDistance(meters float64) Distance {
	return Distance{Meters: meters, Known: true}
}

// String は表示用の距離ラベルを返す
func (d Distance) String() string {
	if !d.Known {
		return "-"
	}
	return Dot2f(d.Meters) + "m"
}

// MarshalJSON は不明な距離を null として出力する
func (d Distance) MarshalJSON() ([]byte, error) {
	if !d.Known {
		return []byte("null"), nil
	}
	return json.Marshal(d.Meters)
}

// UnmarshalJSON は null を不明な距離として読み込む
func (d *Distance) UnmarshalJSON(data []byte) error {
	var meters *float64
	if err := json.Unmarshal(data, &meters); err != nil {
		return fmt.Errorf("距離の読み込みに失敗: %w", err)
	}
	if meters == nil {
		*d = UnknownDistance()
		return nil
	}
	*d = KnownDistance(*meters)
	return nil
}

// OpticsMetrics はサンプルとキャリブレーションから導出した計測値
type OpticsMetrics struct {
	ImageWidth      int      `json:"image_width"`
	ImageHeight     int      `json:"image_height"`
	LensPosition    float64  `json:"lens_position"`
	HFocalLength    float64  `json:"h_focal_length"`   // 焦点距離（水平方向のピクセルサイズ換算）
	VFocalLength    float64  `json:"v_focal_length"`   // 焦点距離（垂直方向のピクセルサイズ換算）
	HImageCenter    float64  `json:"h_image_center"`   // 水平画像中心
	VImageCenter    float64  `json:"v_image_center"`   // 垂直画像中心
	HFov            float64  `json:"h_fov"`            // 水平画角 [度]
	VFov            float64  `json:"v_fov"`            // 垂直画角 [度]
	SubjectDistance Distance `json:"subject_distance"` // 被写体までの距離 [m]
}
