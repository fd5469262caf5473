package sqlitestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagenet/evodispatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListDevicesReturnsSeededRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (recno, device_id, kind, address, address_auto, password, max_seq) VALUES (363, 'sign-363', 2, '192.168.1.50:8080', 0, 'pw', 4)`)
	require.NoError(t, err)

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, model.Device{
		RecordNumber: 363,
		DeviceID:     "sign-363",
		Kind:         model.DeviceKindAppliance,
		Address:      "192.168.1.50:8080",
		Password:     "pw",
		MaxSeq:       4,
	}, devices[0])
}

func TestGetBannerRoundTripsFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO banners (recno_zx, recno_template, text1, multimedia_type) VALUES ('345', '305', 'hello', 'webpage')`)
	require.NoError(t, err)

	b, err := s.GetBanner(ctx, 345)
	require.NoError(t, err)
	assert.Equal(t, "345", b.RecnoZX)
	assert.Equal(t, "305", b.RecnoTemplate)
	assert.Equal(t, "hello", b.TextSegments[0])
	assert.Equal(t, model.MultimediaWebpage, b.MultimediaType)
}

func TestGetBannerNotFoundReturnsError(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBanner(context.Background(), 999)
	assert.Error(t, err)
}

func TestHardwareGetAndUpdateIP(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO hardware (recno, ip_method, ip_address) VALUES (363, 'dhcp', '192.168.1.50')`)
	require.NoError(t, err)

	method, ip, err := s.GetIPConfig(ctx, 363)
	require.NoError(t, err)
	assert.Equal(t, "dhcp", string(method))
	assert.Equal(t, "192.168.1.50", ip)

	require.NoError(t, s.UpdateIP(ctx, 363, "192.168.1.229"))

	_, ip, err = s.GetIPConfig(ctx, 363)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.229", ip)
}

func TestUpdateIPUnknownHardwareReturnsError(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateIP(context.Background(), 404, "1.2.3.4")
	assert.Error(t, err)
}

func TestMultiAudioGroupNamesOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO template_audio (template_recno, position, name) VALUES (305, 1, 'lobby'), (305, 0, 'foyer')`)
	require.NoError(t, err)

	names, err := s.MultiAudioGroupNames(ctx, 305)
	require.NoError(t, err)
	assert.Equal(t, []string{"foyer", "lobby"}, names)
}

func TestWebpageContentNotFound(t *testing.T) {
	s := openTestStore(t)
	content, found, err := s.WebpageContent(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, content)
}
