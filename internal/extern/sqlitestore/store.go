package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/model"
)

// ListDevices implements extern.DeviceRepository.
func (s *Store) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT recno, device_id, kind, address, address_auto, password, max_seq FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		var addressAuto int
		if err := rows.Scan(&d.RecordNumber, &d.DeviceID, &d.Kind, &d.Address, &addressAuto, &d.Password, &d.MaxSeq); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.AddressAuto = addressAuto != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetBanner implements extern.BannerRepository.
func (s *Store) GetBanner(ctx context.Context, recnoZX int64) (model.Banner, error) {
	var b model.Banner
	var recnoZXStr string
	var multimediaType string
	var showCamera int
	var lightSignal, flashNewMessage, visibleTime, visibleFrequency, visibleDuration int
	var recordVoiceAtLaunch, paDeliveryMode, audioRepeat int

	row := s.db.QueryRowContext(ctx, `
		SELECT recno_zx, recno_template, launch_dtsec, duration, priority, expire_priority,
		       priority_duration, page_priority_launch, alert_status,
		       text1, text2, text3, text4, text5, audio_group, multimedia_type,
		       show_camera, camera_device_id, launch_pin,
		       playtime_duration, flasher_duration, light_signal, light_duration, audio_tts_gain,
		       flash_new_message, visible_time, visible_frequency, visible_duration,
		       record_voice_at_launch_sel, record_voice_at_launch, audio_recorded_gain,
		       pa_delivery_mode, audio_repeat, speed, multimedia_audio_gain
		FROM banners WHERE recno_zx = ?`, strconv.FormatInt(recnoZX, 10))

	err := row.Scan(
		&recnoZXStr, &b.RecnoTemplate, &b.LaunchDTSec, &b.Duration, &b.Priority, &b.ExpirePriority,
		&b.PriorityDuration, &b.PagePriorityLaunch, &b.AlertStatus,
		&b.TextSegments[0], &b.TextSegments[1], &b.TextSegments[2], &b.TextSegments[3], &b.TextSegments[4],
		&b.AudioGroup, &multimediaType,
		&showCamera, &b.CameraDeviceID, &b.LaunchPIN,
		&b.PlaytimeDuration, &b.FlasherDuration, &lightSignal, &b.LightDuration, &b.AudioTTSGain,
		&flashNewMessage, &visibleTime, &visibleFrequency, &visibleDuration,
		&b.RecordVoiceAtLaunchSel, &recordVoiceAtLaunch, &b.AudioRecordedGain,
		&paDeliveryMode, &audioRepeat, &b.Speed, &b.MultimediaAudioGain,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Banner{}, fmt.Errorf("banner %d: %w", recnoZX, evoerr.ErrDBCurrency)
	}
	if err != nil {
		return model.Banner{}, fmt.Errorf("scan banner %d: %w", recnoZX, err)
	}

	b.RecnoZX = recnoZXStr
	b.MultimediaType = model.MultimediaType(multimediaType)
	b.ShowCamera = showCamera != 0
	b.LightSignal = byte(lightSignal)
	b.FlashNewMessage = byte(flashNewMessage)
	b.VisibleTime = byte(visibleTime)
	b.VisibleFrequency = byte(visibleFrequency)
	b.VisibleDuration = byte(visibleDuration)
	b.RecordVoiceAtLaunch = byte(recordVoiceAtLaunch)
	b.PADeliveryMode = byte(paDeliveryMode)
	b.AudioRepeat = byte(audioRepeat)
	return b, nil
}

// MultiAudioGroupNames implements extern.TemplateAudioRepository.
func (s *Store) MultiAudioGroupNames(ctx context.Context, templateRecno int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM template_audio WHERE template_recno = ? ORDER BY position`, templateRecno)
	if err != nil {
		return nil, fmt.Errorf("list template audio groups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan template audio group: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// GroupsForDevice implements extern.DeviceAudioRepository.
func (s *Store) GroupsForDevice(ctx context.Context, deviceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_name FROM device_audio_groups WHERE device_id = ? ORDER BY group_name`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list device audio groups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan device audio group: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ResolveStreamURL implements extern.CameraResolver.
func (s *Store) ResolveStreamURL(ctx context.Context, cameraDeviceID string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx,
		`SELECT stream_url FROM camera_streams WHERE camera_device_id = ?`, cameraDeviceID).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("camera %q: %w", cameraDeviceID, evoerr.ErrDBCurrency)
	}
	if err != nil {
		return "", fmt.Errorf("resolve camera stream: %w", err)
	}
	return url, nil
}

// WebpageContent implements extern.MultimediaResolver.
func (s *Store) WebpageContent(ctx context.Context, templateRecno int64) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM webpages WHERE template_recno = ?`, templateRecno).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve webpage content: %w", err)
	}
	return content, true, nil
}

// VideoFilename implements extern.MultimediaResolver.
func (s *Store) VideoFilename(ctx context.Context, templateRecno int64) (string, bool, error) {
	var filename string
	err := s.db.QueryRowContext(ctx,
		`SELECT filename FROM videos WHERE template_recno = ?`, templateRecno).Scan(&filename)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve video filename: %w", err)
	}
	return filename, true, nil
}

// GenderForPIN implements extern.StaffRepository.
func (s *Store) GenderForPIN(ctx context.Context, pin string) (string, bool, error) {
	var gender string
	err := s.db.QueryRowContext(ctx, `SELECT gender FROM staff WHERE pin = ?`, pin).Scan(&gender)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve staff gender: %w", err)
	}
	return gender, true, nil
}

// GetIPConfig implements extern.HardwareRepository.
func (s *Store) GetIPConfig(ctx context.Context, hardwareRecno int64) (extern.IPMethod, string, error) {
	var method, ip string
	err := s.db.QueryRowContext(ctx,
		`SELECT ip_method, ip_address FROM hardware WHERE recno = ?`, hardwareRecno).Scan(&method, &ip)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("hardware %d: %w", hardwareRecno, evoerr.ErrDBCurrency)
	}
	if err != nil {
		return "", "", fmt.Errorf("get IP config: %w", err)
	}
	return extern.IPMethod(method), ip, nil
}

// UpdateIP implements extern.HardwareRepository.
func (s *Store) UpdateIP(ctx context.Context, hardwareRecno int64, ip string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE hardware SET ip_address = ? WHERE recno = ?`, ip, hardwareRecno)
	if err != nil {
		return fmt.Errorf("update hardware IP: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update hardware IP: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("hardware %d: %w", hardwareRecno, evoerr.ErrDBCurrency)
	}
	return nil
}
