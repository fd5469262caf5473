package appliance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/extern/memory"
	"github.com/messagenet/evodispatch/internal/model"
)

func newTestTranslator(store *memory.Store) *appliance.Translator {
	return appliance.New(store, store, store, store, store)
}

func TestNewMessageScrollingDefault(t *testing.T) {
	store := memory.New()
	store.DeviceAudioGroups["sign-363"] = []string{"lobby"}

	tr := newTestTranslator(store)
	device := model.Device{RecordNumber: 363, DeviceID: "sign-363", Password: "secret"}
	banner := model.Banner{
		RecnoZX:       "345",
		RecnoTemplate: "305",
		TextSegments:  [5]string{"Hello ", "World", "", "", ""},
		AudioGroup:    "lobby",
	}

	body, err := tr.NewMessage(context.Background(), device, banner, 0)
	require.NoError(t, err)
	assert.Equal(t, "newscrollingmessage", body.Bannerpurpose)
	assert.Equal(t, "secret", body.Password)
	require.Len(t, body.BannerMessages, 1)
	msg := body.BannerMessages[0]
	assert.Equal(t, "345", msg.RecnoZX)
	assert.Equal(t, "Hello World", msg.MsgText)
	assert.Equal(t, []string{"lobby"}, msg.AudioGroups)
	assert.Equal(t, []string{"lobby"}, msg.DSIAudioGroupName)
	assert.Equal(t, "FALSE", msg.WebpageURL)
}

func TestNewMessageCameraPurpose(t *testing.T) {
	store := memory.New()
	store.CameraStreams["cam-1"] = "rtsp://cam-1/stream"

	tr := newTestTranslator(store)
	device := model.Device{DeviceID: "sign-1"}
	banner := model.Banner{
		ShowCamera:     true,
		CameraDeviceID: "cam-1",
	}

	body, err := tr.NewMessage(context.Background(), device, banner, 0)
	require.NoError(t, err)
	assert.Equal(t, "newcameramessage", body.Bannerpurpose)
	assert.Equal(t, "rtsp://cam-1/stream", body.BannerMessages[0].WebpageURL)
}

func TestAudioGroupChooseIsUnsupported(t *testing.T) {
	store := memory.New()
	tr := newTestTranslator(store)
	device := model.Device{DeviceID: "sign-1"}
	banner := model.Banner{AudioGroup: model.AudioGroupChoose}

	_, err := tr.NewMessage(context.Background(), device, banner, 0)
	assert.ErrorIs(t, err, evoerr.ErrTranslatorUnsupported)
}

func TestAudioGroupMultipleResolvesFromTemplate(t *testing.T) {
	store := memory.New()
	store.TemplateAudio[305] = []string{"lobby", "cafeteria"}

	tr := newTestTranslator(store)
	device := model.Device{DeviceID: "sign-1"}
	banner := model.Banner{RecnoTemplate: "305", AudioGroup: model.AudioGroupMultiple}

	body, err := tr.NewMessage(context.Background(), device, banner, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby", "cafeteria"}, body.BannerMessages[0].AudioGroups)
}

func TestWebpageURLFallsBackToNullOnMissingFile(t *testing.T) {
	store := memory.New()
	tr := newTestTranslator(store)
	device := model.Device{DeviceID: "sign-1"}
	banner := model.Banner{MultimediaType: model.MultimediaWebpage, RecnoTemplate: "9"}

	body, err := tr.NewMessage(context.Background(), device, banner, 0)
	require.NoError(t, err)
	assert.Equal(t, "NULL", body.BannerMessages[0].WebpageURL)
}

func TestStaffGenderRequiresValidPIN(t *testing.T) {
	store := memory.New()
	store.StaffGenders["1234"] = "F"

	tr := newTestTranslator(store)
	device := model.Device{DeviceID: "sign-1"}

	valid, err := tr.NewMessage(context.Background(), device, model.Banner{LaunchPIN: "1234"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "F", valid.BannerMessages[0].Gender)

	invalid, err := tr.NewMessage(context.Background(), device, model.Banner{LaunchPIN: "0000"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "", invalid.BannerMessages[0].Gender)
}

func TestClearSignAndStopMessageBodies(t *testing.T) {
	store := memory.New()
	tr := newTestTranslator(store)
	device := model.Device{Password: "pw"}

	clear := tr.ClearSign(device)
	assert.Equal(t, "clearsign", clear.Bannerpurpose)

	stop := tr.StopMessage(device, "346")
	assert.Equal(t, "stopscrollingmessage", stop.Bannerpurpose)
	assert.Equal(t, "346", stop.RecnoZX)
}

func TestSequenceBodyEnumeratesSlotsInOrder(t *testing.T) {
	store := memory.New()
	tr := newTestTranslator(store)
	device := model.Device{DeviceID: "sign-1"}

	entries := []appliance.SlotEntry{
		{SlotIndex: 0, Banner: model.Banner{RecnoZX: "345"}},
		{SlotIndex: 1, Banner: model.Banner{RecnoZX: "346"}},
	}

	body, err := tr.Sequence(context.Background(), device, "AB", entries)
	require.NoError(t, err)
	assert.Equal(t, "updateseq", body.Bannerpurpose)
	require.Len(t, body.BannerMessages, 2)
	assert.Equal(t, "345", body.BannerMessages[0].RecnoZX)
	assert.Equal(t, "346", body.BannerMessages[1].RecnoZX)
}
