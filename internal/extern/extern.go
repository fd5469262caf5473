// Package extern declares the interfaces through which the dispatcher
// core reaches the external collaborators named in spec §1 as "out of
// scope": the record-oriented banner/hardware database, text-to-speech
// and multimedia asset resolution, and camera/RTSP URL resolution. The
// core never implements these itself; it only consumes them.
package extern

import (
	"context"

	"github.com/messagenet/evodispatch/internal/model"
)

// BannerRepository reads read-only banner record views from the
// external database (spec §3: "Banner record (read-only view from
// external DB)").
type BannerRepository interface {
	// GetBanner returns the banner record for a live message instance.
	GetBanner(ctx context.Context, recnoZX int64) (model.Banner, error)
}

// TemplateAudioRepository resolves the "multiple" audio-group literal
// (spec §4.D) against a template's message-options multi-audio record
// list.
type TemplateAudioRepository interface {
	// MultiAudioGroupNames returns the audio group names listed in the
	// template's message-options multi-audio record list, in order.
	MultiAudioGroupNames(ctx context.Context, templateRecno int64) ([]string, error)
}

// DeviceAudioRepository resolves dsi_audio_group_name: every audio
// group that contains a given device (spec §4.D).
type DeviceAudioRepository interface {
	GroupsForDevice(ctx context.Context, deviceID string) ([]string, error)
}

// CameraResolver resolves a camera device-id to its live RTSP stream
// URL (spec §1: "camera/RTSP URL resolution" is an external
// collaborator; spec §4.D: "the resolved RTSP stream URL for camera
// messages").
type CameraResolver interface {
	ResolveStreamURL(ctx context.Context, cameraDeviceID string) (string, error)
}

// MultimediaResolver resolves the on-disk webpage/video asset
// associated with a message template (spec §1: multimedia asset
// filesystem layout is out of scope; only the resolved value is
// consumed).
type MultimediaResolver interface {
	// WebpageContent returns the webpage/webmedia URL content and
	// whether a multimedia file was found for templateRecno.
	WebpageContent(ctx context.Context, templateRecno int64) (content string, found bool, err error)
	// VideoFilename returns the resolved video filename and whether a
	// multimedia file was found for templateRecno.
	VideoFilename(ctx context.Context, templateRecno int64) (filename string, found bool, err error)
}

// StaffRepository resolves a launcher PIN to the launching staff
// member's gender, mirroring the original's PIN-validity check before
// reading the staff record (spec §4.D: "dss_gender (from the launcher's
// staff record when the PIN is valid, else empty)").
type StaffRepository interface {
	GenderForPIN(ctx context.Context, pin string) (gender string, valid bool, err error)
}

// IPMethod is a hardware record's configured IP acquisition method
// (spec §4.H scenario 5).
type IPMethod string

const (
	IPMethodStatic IPMethod = "static"
	IPMethodDHCP   IPMethod = "dhcp"
)

// HardwareRepository reads and updates the subset of a hardware record
// the CGI network-info report action needs.
type HardwareRepository interface {
	// GetIPConfig returns the hardware record's configured IP method and
	// its currently stored IP address.
	GetIPConfig(ctx context.Context, hardwareRecno int64) (method IPMethod, currentIP string, err error)
	// UpdateIP persists a new IP address for the hardware record.
	UpdateIP(ctx context.Context, hardwareRecno int64, ip string) error
}

// DeviceRepository lists the hardware rows the registry loads at
// startup (spec §4.B: "built at startup from the database in a fixed
// device-kind order").
type DeviceRepository interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
}
