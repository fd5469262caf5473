// Package model holds the data-model types shared across the dispatcher
// core (spec §3): banner records, devices, slots, and command envelopes.
// Banner and hardware rows are read-only views of external database
// records; the core never writes them directly.
package model

// MultimediaType selects the appliance bannerpurpose for a new-message
// dispatch (spec §4.D).
type MultimediaType string

const (
	MultimediaNone              MultimediaType = "none"
	MultimediaMessage           MultimediaType = "message"
	MultimediaMessageFullScreen MultimediaType = "message_full_screen"
	MultimediaVideo             MultimediaType = "video"
	MultimediaVideoStretched    MultimediaType = "video_stretched"
	MultimediaVideoZoom1        MultimediaType = "video_zoom1"
	MultimediaVideoZoom2        MultimediaType = "video_zoom2"
	MultimediaWebpage           MultimediaType = "webpage"
	MultimediaWebmedia          MultimediaType = "webmedia"
	MultimediaLocationsDisplay  MultimediaType = "locations_display"
	MultimediaGeoLocationsMap   MultimediaType = "geo_locations_map"
)

// AudioGroupLiteral values for Banner.AudioGroup that require resolution
// against other records rather than being used as-is (spec §3, §4.D).
const (
	AudioGroupMultiple = "multiple"
	AudioGroupChoose   = "choose"
)

// Banner is the read-only subset of a launched-message database record
// that the dispatcher core needs to render appliance JSON. All other
// banner attributes are out of scope (spec §1).
type Banner struct {
	RecnoZX           string // live message instance record number
	RecnoTemplate      string // template record number this instance was launched from
	LaunchDTSec        string // launch timestamp, as stored by the external DB
	Duration           int64
	Priority           int
	ExpirePriority     int
	PriorityDuration   int64
	PagePriorityLaunch int
	AlertStatus        byte // kind/alert code, maps into an AlertStatus table
	TextSegments       [5]string
	AudioGroup         string // a single group name, AudioGroupMultiple, or AudioGroupChoose
	MultimediaType     MultimediaType
	ShowCamera         bool
	CameraDeviceID     string
	LaunchPIN          string

	// Presentation knobs, pass-through to appliance JSON (spec §3).
	PlaytimeDuration         int64
	FlasherDuration          int
	LightSignal              byte // 0 means absent
	LightDuration            int
	AudioTTSGain             int
	FlashNewMessage          byte // 0 means absent
	VisibleTime              byte // 0 means absent
	VisibleFrequency         byte // 0 means absent
	VisibleDuration          byte // 0 means absent
	RecordVoiceAtLaunchSel   int
	RecordVoiceAtLaunch      byte // 0 means absent
	AudioRecordedGain        int
	PADeliveryMode           byte // 0 means absent
	AudioRepeat              byte // 0 means absent
	Speed                    int
	MultimediaAudioGain      int
}

// Text joins the five text segments in order into one message body
// (spec §3: "up to five text segments concatenated in order").
func (b Banner) Text() string {
	var out string
	for _, seg := range b.TextSegments {
		out += seg
	}
	return out
}
