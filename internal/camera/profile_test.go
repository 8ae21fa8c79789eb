package camera

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfiles(t *testing.T) {
	catalog, err := NewCatalog(DefaultProfiles()...)
	require.NoError(t, err)

	profiles := catalog.List()
	require.Len(t, profiles, 2)
	assert.Equal(t, ProfileWide4K, profiles[0].ID)
	assert.Equal(t, ProfileWideHD, profiles[1].ID)

	hd, err := catalog.Get(ProfileWideHD)
	require.NoError(t, err)
	assert.Equal(t, 1383.95, hd.Calibration.ReferenceFocalLengthPixels)
	assert.Equal(t, 0.00000337492, hd.Calibration.PixelSizeMeters)
}

func TestCatalog_Get_NotFound(t *testing.T) {
	catalog, err := NewCatalog(DefaultProfiles()...)
	require.NoError(t, err)

	_, err = catalog.Get("tele_hd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestCatalog_ForResolution(t *testing.T) {
	catalog, err := NewCatalog(DefaultProfiles()...)
	require.NoError(t, err)

	p, found := catalog.ForResolution(3840, 2160)
	require.True(t, found)
	assert.Equal(t, ProfileWide4K, p.ID)

	_, found = catalog.ForResolution(640, 480)
	assert.False(t, found)
}

func TestCatalog_Add_Invalid(t *testing.T) {
	valid := DefaultProfiles()[0]

	testCases := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty id", func(p *Profile) { p.ID = "" }},
		{"zero width", func(p *Profile) { p.Width = 0 }},
		{"zero pixel size", func(p *Profile) { p.Calibration.PixelSizeMeters = 0 }},
		{"negative focal length", func(p *Profile) { p.Calibration.ReferenceFocalLengthPixels = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			_, err := NewCatalog(p)
			assert.Error(t, err)
		})
	}

	_, err := NewCatalog(valid, valid)
	assert.Error(t, err, "Expected error for duplicate profile")

	uncalibrated := valid
	uncalibrated.ID = "uncalibrated"
	uncalibrated.Calibration.ReferenceFocalLengthPixels = 0
	_, err = NewCatalog(uncalibrated)
	assert.NoError(t, err)
}
