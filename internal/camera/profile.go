package camera

import (
	"fmt"
	"sort"
	"sync"

	"shoten/internal/optics"
)

// プリセットID
const (
	ProfileWideHD = "wide_hd" // 広角 Full HD
	ProfileWide4K = "wide_4k" // 広角 4K
)

// Profile は解像度プリセットごとのキャリブレーション値
type Profile struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Width       int                      `json:"width"`
	Height      int                      `json:"height"`
	Calibration optics.CameraCalibration `json:"calibration"`
}

// Validate はプロファイルの妥当性を検証する
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("プロファイルIDが空です")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("プロファイル %s の解像度が無効: %dx%d", p.ID, p.Width, p.Height)
	}
	if p.Calibration.PixelSizeMeters <= 0 {
		return fmt.Errorf("プロファイル %s の画素ピッチが無効: %v", p.ID, p.Calibration.PixelSizeMeters)
	}
	// 0 は未キャリブレーション（距離は常に不明）として許可する
	if p.Calibration.ReferenceFocalLengthPixels < 0 {
		return fmt.Errorf("プロファイル %s の基準焦点距離が無効: %v", p.ID, p.Calibration.ReferenceFocalLengthPixels)
	}
	return nil
}

// DefaultProfiles は iPhone12Pro の広角カメラで実測したプロファイルを返す
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ID:     ProfileWideHD,
			Name:   "広角 Full HD",
			Width:  1920,
			Height: 1080,
			Calibration: optics.CameraCalibration{
				PixelSizeMeters:            0.000_003_374_92,
				ReferenceFocalLengthPixels: 1383.95,
			},
		},
		{
			ID:     ProfileWide4K,
			Name:   "広角 4K",
			Width:  3840,
			Height: 2160,
			Calibration: optics.CameraCalibration{
				PixelSizeMeters:            0.000_004_550_51,
				ReferenceFocalLengthPixels: 2724.43,
			},
		},
	}
}

// Catalog はプロファイルの一覧を保持する
type Catalog struct {
	profiles map[string]Profile
	mu       sync.RWMutex
}

// NewCatalog は検証済みのプロファイルからCatalogを作成する
func NewCatalog(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{
		profiles: make(map[string]Profile, len(profiles)),
	}

	for _, p := range profiles {
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Add はプロファイルを追加する
func (c *Catalog) Add(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.profiles[p.ID]; exists {
		return fmt.Errorf("プロファイル %s は既に登録されています", p.ID)
	}
	c.profiles[p.ID] = p
	return nil
}

// Get は指定されたIDのプロファイルを取得する
func (c *Catalog) Get(id string) (Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, exists := c.profiles[id]
	if !exists {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}

// List はID順のプロファイル一覧を返す
func (c *Catalog) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	profiles := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ID < profiles[j].ID
	})
	return profiles
}

// ForResolution は解像度が一致するプロファイルを探す
func (c *Catalog) ForResolution(width, height int) (Profile, bool) {
	for _, p := range c.List() {
		if p.Width == width && p.Height == height {
			return p, true
		}
	}
	return Profile{}, false
}
