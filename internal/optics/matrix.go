package optics

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// matrixAttachmentSize はプラットフォームが添付する matrix_float3x3 のバイト数
// 3列 × (float32 ×3 + 4バイトのパディング)
const matrixAttachmentSize = 3 * 16

// NewIntrinsicMatrix は焦点距離と画像中心から内部パラメータ行列を作成する
func NewIntrinsicMatrix(fx, fy, cx, cy float64) IntrinsicMatrix {
	return IntrinsicMatrix{
		{fx, 0, 0},
		{0, fy, 0},
		{cx, cy, 1},
	}
}

// Dense は一般的な行優先の K 行列（[[fx,0,cx],[0,fy,cy],[0,0,1]]）として返す
func (m IntrinsicMatrix) Dense() *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			k.Set(row, col, m[col][row])
		}
	}
	return k
}

// MatrixFromDense は行優先の K 行列から内部パラメータ行列を作成する
func MatrixFromDense(k mat.Matrix) (IntrinsicMatrix, error) {
	rows, cols := k.Dims()
	if rows != 3 || cols != 3 {
		return IntrinsicMatrix{}, fmt.Errorf("内部パラメータ行列は3x3である必要があります: %dx%d", rows, cols)
	}

	var m IntrinsicMatrix
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m[col][row] = k.At(row, col)
		}
	}
	return m, nil
}

// MatrixFromRows は行優先の K 行列を表す入れ子のスライスから内部パラメータ行列を作成する
func MatrixFromRows(rows [][]float64) (IntrinsicMatrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return IntrinsicMatrix{}, fmt.Errorf("内部パラメータ行列が空です")
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return IntrinsicMatrix{}, fmt.Errorf("内部パラメータ行列の %d 行目の長さが不正です: %d (期待: %d)", i, len(row), cols)
		}
		data = append(data, row...)
	}

	return MatrixFromDense(mat.NewDense(len(rows), cols, data))
}

// Rows は行優先の K 行列を入れ子のスライスとして返す
func (m IntrinsicMatrix) Rows() [][]float64 {
	k := m.Dense()
	rows := make([][]float64, 3)
	for i := range rows {
		rows[i] = mat.Row(nil, i, k)
	}
	return rows
}

// DecodeMatrixAttachment はフレームに添付された生の行列データを読み込む
// データはリトルエンディアンの float32 で、各列が16バイト境界に揃えられている
func DecodeMatrixAttachment(data []byte) (IntrinsicMatrix, error) {
	if len(data) < matrixAttachmentSize {
		return IntrinsicMatrix{}, fmt.Errorf("行列データが短すぎます: %d バイト (必要: %d)", len(data), matrixAttachmentSize)
	}

	var m IntrinsicMatrix
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			offset := col*16 + row*4
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			m[col][row] = float64(math.Float32frombits(bits))
		}
	}
	return m, nil
}
