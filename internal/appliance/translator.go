package appliance

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/model"
)

// alertStatusLabel maps a banner's alert/kind code to the msgtype label
// the appliance expects (support_evolution.c: "bb_alert_status[tmp_i]").
// The full lookup table lives in a header outside the retrieval pack;
// BB_ALERT_STATUS_MESSAGE's fallback ("substituting" on an unmapped
// code, per smajax.c:2811) is the one entry we can ground concretely, so
// unmapped codes fall back to it rather than guessing the rest of the
// table.
var alertStatusLabel = map[byte]string{
	0: "MESSAGE",
}

const defaultAlertStatusLabel = "MESSAGE"

// Translator renders banner records into appliance wire bodies (spec
// §4.D). It is a pure function of its inputs plus the external
// collaborators named in spec §1 — the record-oriented database, audio
// group membership, camera/multimedia resolution, and staff lookup —
// reached only through the internal/extern interfaces.
type Translator struct {
	deviceAudio   extern.DeviceAudioRepository
	templateAudio extern.TemplateAudioRepository
	camera        extern.CameraResolver
	multimedia    extern.MultimediaResolver
	staff         extern.StaffRepository

	sanitizer *bluemonday.Policy
}

// New builds a Translator wired to its external collaborators.
func New(
	deviceAudio extern.DeviceAudioRepository,
	templateAudio extern.TemplateAudioRepository,
	camera extern.CameraResolver,
	multimedia extern.MultimediaResolver,
	staff extern.StaffRepository,
) *Translator {
	return &Translator{
		deviceAudio:   deviceAudio,
		templateAudio: templateAudio,
		camera:        camera,
		multimedia:    multimedia,
		staff:         staff,
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

// SlotEntry pairs a populated slot's index with the banner record it
// currently displays, for the sequence-number ("updateseq") body.
type SlotEntry struct {
	SlotIndex int
	Banner    model.Banner
}

// NewMessageBody is the wire body for a new-message dispatch.
type NewMessageBody struct {
	Password         string    `json:"password"`
	Bannerpurpose    string    `json:"bannerpurpose"`
	HardwareDeviceID string    `json:"hardware_deviceid"`
	HardwareRecno    int64     `json:"hardware_recno"`
	BannerMessages   []Message `json:"bannermessages"`
}

// StopMessageBody is the wire body for a stop-message dispatch.
type StopMessageBody struct {
	Password      string `json:"password"`
	Bannerpurpose string `json:"bannerpurpose"`
	RecnoZX       string `json:"recno_zx"`
}

// ClearSignBody is the wire body for a clear-sign dispatch.
type ClearSignBody struct {
	Password      string `json:"password"`
	Bannerpurpose string `json:"bannerpurpose"`
}

// SequenceBody is the wire body for a sequence-number dispatch.
type SequenceBody struct {
	Password       string    `json:"password"`
	Bannerpurpose  string    `json:"bannerpurpose"`
	SeqString      string    `json:"seqstring"`
	BannerMessages []Message `json:"bannermessages"`
}

// NewMessage renders the new-message body for one banner landing in one
// slot (spec §4.D).
func (t *Translator) NewMessage(ctx context.Context, device model.Device, banner model.Banner, slotIndex int) (NewMessageBody, error) {
	msg, err := t.buildMessage(ctx, device, banner, slotIndex)
	if err != nil {
		return NewMessageBody{}, err
	}

	return NewMessageBody{
		Password:         device.Password,
		Bannerpurpose:    bannerpurposeForNewMessage(banner),
		HardwareDeviceID: device.DeviceID,
		HardwareRecno:    device.RecordNumber,
		BannerMessages:   []Message{msg},
	}, nil
}

// StopMessage renders the stop-message body (spec §4.D).
func (t *Translator) StopMessage(device model.Device, recnoZX string) StopMessageBody {
	return StopMessageBody{
		Password:      device.Password,
		Bannerpurpose: "stopscrollingmessage",
		RecnoZX:       recnoZX,
	}
}

// ClearSign renders the clear-sign body (spec §4.D).
func (t *Translator) ClearSign(device model.Device) ClearSignBody {
	return ClearSignBody{
		Password:      device.Password,
		Bannerpurpose: "clearsign",
	}
}

// Sequence renders the sequence-number ("updateseq") body enumerating
// every currently populated slot in slot order (spec §4.D).
func (t *Translator) Sequence(ctx context.Context, device model.Device, seqString string, entries []SlotEntry) (SequenceBody, error) {
	messages := make([]Message, 0, len(entries))
	for _, e := range entries {
		msg, err := t.buildMessage(ctx, device, e.Banner, e.SlotIndex)
		if err != nil {
			return SequenceBody{}, err
		}
		messages = append(messages, msg)
	}

	return SequenceBody{
		Password:       device.Password,
		Bannerpurpose:  "updateseq",
		SeqString:      seqString,
		BannerMessages: messages,
	}, nil
}

// Message renders one banner's per-message JSON object directly,
// without wrapping it in a command-specific body (spec §4.H:
// evolutionGetMessageDataForRecnoZX "assembles the full per-message
// JSON").
func (t *Translator) Message(ctx context.Context, device model.Device, banner model.Banner, slotIndex int) (Message, error) {
	return t.buildMessage(ctx, device, banner, slotIndex)
}

func bannerpurposeForNewMessage(b model.Banner) string {
	switch b.MultimediaType {
	case model.MultimediaVideo, model.MultimediaVideoStretched, model.MultimediaVideoZoom1, model.MultimediaVideoZoom2:
		return "newvideo"
	case model.MultimediaWebpage, model.MultimediaWebmedia:
		return "newwebpage"
	case model.MultimediaLocationsDisplay:
		return "newlocationsdisplay"
	case model.MultimediaGeoLocationsMap:
		return "newgeolocationsmap"
	default:
		if b.ShowCamera && strings.TrimSpace(b.CameraDeviceID) != "" {
			return "newcameramessage"
		}
		return "newscrollingmessage"
	}
}

func (t *Translator) buildMessage(ctx context.Context, device model.Device, banner model.Banner, slotIndex int) (Message, error) {
	audioGroups, err := t.resolveAudioGroups(ctx, banner)
	if err != nil {
		return Message{}, err
	}

	deviceGroups, err := t.deviceAudio.GroupsForDevice(ctx, device.DeviceID)
	if err != nil {
		return Message{}, err
	}

	webpageURL, err := t.resolveWebpageURL(ctx, banner)
	if err != nil {
		return Message{}, err
	}

	gender := ""
	if banner.LaunchPIN != "" {
		g, valid, err := t.staff.GenderForPIN(ctx, banner.LaunchPIN)
		if err != nil {
			return Message{}, err
		}
		if valid {
			gender = g
		}
	}

	text := t.sanitizer.Sanitize(banner.Text())
	text = escapeText(text)

	return Message{
		SignSeqNum:    slotIndex,
		LaunchDTSec:   banner.LaunchDTSec,
		RecnoZX:       banner.RecnoZX,
		RecnoTemplate: banner.RecnoTemplate,
		Duration:      banner.Duration,
		MsgType:       alertStatusLabelFor(banner.AlertStatus),
		MsgText:       text,
		MsgDetails:    "",

		DSIAudioGroupName: deviceGroups,
		AudioGroups:       audioGroups,

		PlaytimeDuration:       banner.PlaytimeDuration,
		FlasherDuration:        banner.FlasherDuration,
		LightSignal:            charOrEmpty(banner.LightSignal),
		LightDuration:          banner.LightDuration,
		AudioTTSGain:           banner.AudioTTSGain,
		FlashNewMessage:        charOrEmpty(banner.FlashNewMessage),
		VisibleTime:            charOrEmpty(banner.VisibleTime),
		VisibleFrequency:       charOrEmpty(banner.VisibleFrequency),
		VisibleDuration:        charOrEmpty(banner.VisibleDuration),
		RecordVoiceAtLaunchSel: banner.RecordVoiceAtLaunchSel,
		RecordVoiceAtLaunch:    charOrEmpty(banner.RecordVoiceAtLaunch),
		AudioRecordedGain:      banner.AudioRecordedGain,
		PADeliveryMode:         charOrEmpty(banner.PADeliveryMode),
		AudioRepeat:            charOrEmpty(banner.AudioRepeat),
		Speed:                  banner.Speed,
		Priority:               banner.Priority,
		ExpirePriority:         banner.ExpirePriority,
		PriorityDuration:       banner.PriorityDuration,
		PagePriorityAtLaunch:   banner.PagePriorityLaunch,

		MultimediaType:      multimediaTypeLabel(banner.MultimediaType),
		MultimediaAudioGain: banner.MultimediaAudioGain,
		WebpageURL:          webpageURL,
		LaunchPIN:           banner.LaunchPIN,
		Gender:              gender,
	}, nil
}

// resolveAudioGroups resolves dbb_audio_groups (spec §4.D, SPEC_FULL
// supplemented feature 2). The literal "multiple" walks the template's
// multi-audio record list; "choose" is an explicit unsupported path
// (original source: "NOT WORKING YET"); anything else is used as the
// single named group, or an empty list when blank.
func (t *Translator) resolveAudioGroups(ctx context.Context, banner model.Banner) ([]string, error) {
	switch banner.AudioGroup {
	case model.AudioGroupMultiple:
		names, err := t.templateAudio.MultiAudioGroupNames(ctx, mustParseRecno(banner.RecnoTemplate))
		if err != nil {
			return nil, err
		}
		return names, nil

	case model.AudioGroupChoose:
		return nil, fmt.Errorf("audio group %q: %w", banner.AudioGroup, evoerr.ErrTranslatorUnsupported)

	default:
		if strings.TrimSpace(banner.AudioGroup) == "" {
			return []string{}, nil
		}
		return []string{banner.AudioGroup}, nil
	}
}

// resolveWebpageURL implements webpageurl resolution (spec §4.D,
// SPEC_FULL supplemented feature 3).
func (t *Translator) resolveWebpageURL(ctx context.Context, banner model.Banner) (string, error) {
	switch banner.MultimediaType {
	case model.MultimediaWebpage, model.MultimediaWebmedia:
		content, found, err := t.multimedia.WebpageContent(ctx, mustParseRecno(banner.RecnoTemplate))
		if err != nil {
			return "", err
		}
		if !found {
			return "NULL", nil
		}
		return content, nil

	case model.MultimediaVideo, model.MultimediaVideoStretched, model.MultimediaVideoZoom1, model.MultimediaVideoZoom2:
		name, found, err := t.multimedia.VideoFilename(ctx, mustParseRecno(banner.RecnoTemplate))
		if err != nil {
			return "", err
		}
		if !found {
			return "NULL", nil
		}
		return name, nil

	default:
		if banner.ShowCamera && strings.TrimSpace(banner.CameraDeviceID) != "" {
			url, err := t.camera.ResolveStreamURL(ctx, banner.CameraDeviceID)
			if err != nil {
				return "", err
			}
			return url, nil
		}
		return "FALSE", nil
	}
}

func charOrEmpty(b byte) string {
	if b == 0 {
		return ""
	}
	return string(rune(b))
}

func multimediaTypeLabel(t model.MultimediaType) string {
	return string(t)
}

func alertStatusLabelFor(code byte) string {
	if label, ok := alertStatusLabel[code]; ok {
		return label
	}
	return defaultAlertStatusLabel
}

// mustParseRecno converts a record-number string into its numeric form
// for collaborator lookups. Banner/template record numbers are decimal
// strings throughout the external database (spec §3); a malformed value
// here indicates a corrupt upstream record, not a condition this
// package can recover from, so it resolves to 0 and lets the
// collaborator report "not found" rather than panicking.
func mustParseRecno(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
