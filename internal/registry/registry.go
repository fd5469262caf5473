// Package registry implements the in-memory device registry (spec
// §4.B): a per-process table keyed by hardware record number, built at
// startup from the external database in a fixed device-kind order so
// that transport and IO resources exist before appliance devices are
// loaded.
package registry

import (
	"sync"

	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/slots"
)

// Entry pairs a device's identity/connection state with its slot table.
type Entry struct {
	Device model.Device
	Slots  *slots.Table
}

// Registry is a thread-safe, per-process table of devices. It is
// rebuilt on every process start; cross-process invalidation rides on
// hardware-update envelopes (spec §5).
type Registry struct {
	mu        sync.RWMutex
	byRecno   map[int64]*Entry
	byDevID   map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byRecno: make(map[int64]*Entry),
		byDevID: make(map[string]*Entry),
	}
}

// Load adds or replaces a device entry. Callers load devices in
// DeviceKind order (transport, then IO, then appliance) to satisfy
// spec §4.B's ordering requirement; Load itself does not enforce
// ordering, it only records whatever is given to it.
func (r *Registry) Load(d model.Device) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &Entry{
		Device: d,
		Slots:  slots.New(d.MaxSeq),
	}
	r.byRecno[d.RecordNumber] = e
	if d.DeviceID != "" {
		r.byDevID[d.DeviceID] = e
	}
	return e
}

// Remove deletes a device entry (spec §3: device "destroyed on database
// removal or startup purge").
func (r *Registry) Remove(recno int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byRecno[recno]; ok {
		delete(r.byDevID, e.Device.DeviceID)
		delete(r.byRecno, recno)
	}
}

// ByRecno looks up a device by record number.
func (r *Registry) ByRecno(recno int64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byRecno[recno]
	return e, ok
}

// ByDeviceID looks up a device by its device-id string.
func (r *Registry) ByDeviceID(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byDevID[id]
	return e, ok
}

// All returns every loaded entry's device record number, for iteration
// (e.g. by the supervisor when spawning one worker per device, or by
// the liveness prober).
func (r *Registry) All() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.byRecno))
	for recno := range r.byRecno {
		out = append(out, recno)
	}
	return out
}

// SetStatus updates a device's connection status (spec §4.E: transport
// marks the device active/closed on every transaction).
func (r *Registry) SetStatus(recno int64, status model.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byRecno[recno]; ok {
		e.Device.Status = status
	}
}

// ClearLearnedAddress clears an auto-learned address so the next probe
// re-acquires it (spec §4.B, §4.E).
func (r *Registry) ClearLearnedAddress(recno int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byRecno[recno]; ok {
		e.Device.ClearLearnedAddress()
	}
}

// SetAddress records a newly learned or reconfigured address.
func (r *Registry) SetAddress(recno int64, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byRecno[recno]; ok {
		e.Device.Address = addr
	}
}
