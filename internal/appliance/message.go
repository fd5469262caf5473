// Package appliance implements the Appliance Translator (spec §4.D): a
// pure function from (command kind, banner record, device, slot index,
// sequence string) to the JSON wire body the appliance device class
// consumes. The same per-message object also becomes a journal line
// (spec §4.F: "append the message JSON to the journal (G)"), so Message
// is shared between internal/appliance and internal/journal rather than
// defined twice.
package appliance

// Message is one element of a bannermessages array, and also the exact
// shape of one line in the active-message journal. Field order matches
// spec §4.D's "per-message object (keys in this order)" and the
// original's json_bannmsg assembly in support_evolution.c — order is
// load-bearing because the journal's equality check (spec §9) compares
// serialized lines after stripping SignSeqNum and LaunchDTSec.
type Message struct {
	SignSeqNum int    `json:"signseqnum"`
	LaunchDTSec string `json:"dbb_rec_dtsec"`
	RecnoZX       string `json:"recno_zx"`
	RecnoTemplate string `json:"recno_template"`
	Duration      int64  `json:"dbb_duration"`
	MsgType       string `json:"msgtype"`
	MsgText       string `json:"msgtext"`
	MsgDetails    string `json:"msgdetails"`

	DSIAudioGroupName []string `json:"dsi_audio_group_name"`
	AudioGroups       []string `json:"dbb_audio_groups"`

	PlaytimeDuration       int64  `json:"dbb_playtime_duration"`
	FlasherDuration        int    `json:"dbb_flasher_duration"`
	LightSignal            string `json:"dbb_light_signal"`
	LightDuration          int    `json:"dbb_light_duration"`
	AudioTTSGain           int    `json:"dbb_audio_tts_gain"`
	FlashNewMessage        string `json:"dbb_flash_new_message"`
	VisibleTime            string `json:"dbb_visible_time"`
	VisibleFrequency       string `json:"dbb_visible_frequency"`
	VisibleDuration        string `json:"dbb_visible_duration"`
	RecordVoiceAtLaunchSel int    `json:"dbb_record_voice_at_launch_selection"`
	RecordVoiceAtLaunch    string `json:"dbb_record_voice_at_launch"`
	AudioRecordedGain      int    `json:"dbb_audio_recorded_gain"`
	PADeliveryMode         string `json:"dbb_pa_delivery_mode"`
	AudioRepeat            string `json:"dbb_audio_repeat"`
	Speed                  int    `json:"dbb_speed"`
	Priority               int    `json:"dbb_priority"`
	ExpirePriority         int    `json:"dbb_expire_priority"`
	PriorityDuration       int64  `json:"dbb_priority_duration"`
	PagePriorityAtLaunch   int    `json:"dbb_page_priority_at_launch"`

	MultimediaType          string `json:"multimediatype"`
	MultimediaAudioGain     int    `json:"dbb_multimedia_audio_gain"`
	WebpageURL              string `json:"webpageurl"`
	LaunchPIN               string `json:"dbb_launch_pin"`
	Gender                  string `json:"dss_gender"`
}

// JournalEqualityKey strips the two fields the journal's append
// dedup ignores (spec §9: "the journal's notion of identity is the
// tuple of all JSON fields except those two") and returns the
// remainder for structural comparison.
func (m Message) JournalEqualityKey() Message {
	stripped := m
	stripped.SignSeqNum = 0
	stripped.LaunchDTSec = ""
	return stripped
}
