// Package memory provides in-memory fakes of the external collaborator
// interfaces (internal/extern) for use in tests. Production deployments
// back internal/extern with the real record-oriented database, which is
// out of scope for this repository (spec §1).
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/model"
)

// Store is an in-memory fake satisfying every interface in
// internal/extern. Construct it with New, which allocates every map.
type Store struct {
	mu sync.RWMutex

	Banners           map[int64]model.Banner
	TemplateAudio     map[int64][]string
	DeviceAudioGroups map[string][]string
	CameraStreams     map[string]string
	Webpages          map[int64]string
	VideoFilenames    map[int64]string
	StaffGenders      map[string]string // keyed by PIN; absence means invalid PIN
	HardwareIPMethod  map[int64]extern.IPMethod
	HardwareIP        map[int64]string
	Devices           []model.Device
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		Banners:           make(map[int64]model.Banner),
		TemplateAudio:     make(map[int64][]string),
		DeviceAudioGroups: make(map[string][]string),
		CameraStreams:     make(map[string]string),
		Webpages:          make(map[int64]string),
		VideoFilenames:    make(map[int64]string),
		StaffGenders:      make(map[string]string),
		HardwareIPMethod:  make(map[int64]extern.IPMethod),
		HardwareIP:        make(map[int64]string),
	}
}

func (s *Store) GetBanner(_ context.Context, recnoZX int64) (model.Banner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.Banners[recnoZX]
	if !ok {
		return model.Banner{}, fmt.Errorf("banner %d not found", recnoZX)
	}
	return b, nil
}

func (s *Store) MultiAudioGroupNames(_ context.Context, templateRecno int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TemplateAudio[templateRecno], nil
}

func (s *Store) GroupsForDevice(_ context.Context, deviceID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DeviceAudioGroups[deviceID], nil
}

func (s *Store) ResolveStreamURL(_ context.Context, cameraDeviceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.CameraStreams[cameraDeviceID]
	if !ok {
		return "", fmt.Errorf("no camera stream for device %q", cameraDeviceID)
	}
	return url, nil
}

func (s *Store) WebpageContent(_ context.Context, templateRecno int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.Webpages[templateRecno]
	return content, ok, nil
}

func (s *Store) VideoFilename(_ context.Context, templateRecno int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.VideoFilenames[templateRecno]
	return name, ok, nil
}

func (s *Store) GenderForPIN(_ context.Context, pin string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gender, ok := s.StaffGenders[pin]
	return gender, ok, nil
}

func (s *Store) GetIPConfig(_ context.Context, hardwareRecno int64) (extern.IPMethod, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HardwareIPMethod[hardwareRecno], s.HardwareIP[hardwareRecno], nil
}

func (s *Store) UpdateIP(_ context.Context, hardwareRecno int64, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HardwareIP[hardwareRecno] = ip
	return nil
}

func (s *Store) ListDevices(_ context.Context) ([]model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Device, len(s.Devices))
	copy(out, s.Devices)
	return out, nil
}
