// Package dispatcher implements the Device Dispatcher (spec §4.F): one
// state machine per device that consumes queue events addressed to it,
// mutates its slot table, and invokes the translator and transport to
// render and send appliance wire bodies.
//
// The command queue itself has no notion of "this device" beyond the
// envelope's HardwareRecno field, so Manager centralizes the fan-out
// the system overview describes ("the supervisor fans envelopes to the
// appropriate per-device worker F"): it polls the queue on behalf of
// every (command type, source role) pair a dispatcher cares about and
// routes each envelope to the one worker goroutine that owns that
// device.
package dispatcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
)

// routingTable names, for each command type a dispatcher worker acts
// on, the producer role its envelopes arrive from (spec §2: "producers
// (launch UI, sequencer, CGI-H) write command envelopes into A"). The
// spec names the producer classes but not an exhaustive (command
// type, source role) table; this is the one inferred to cover every
// command type spec §4.F names.
var routingTable = []struct {
	CommandType model.CommandType
	Source      model.Role
}{
	{model.CmdNewMessage, model.RoleLaunchUI},
	{model.CmdClearSign, model.RoleLaunchUI},
	{model.CmdStopMessage, model.RoleLaunchUI},
	{model.CmdSequenceChange, model.RoleSequencer},
	{model.CmdHardwareUpdate, model.RoleCGI},
	{model.CmdApplianceSync, model.RoleCGI},
	{model.CmdShowSignMessages, model.RoleCGI},
}

// Manager owns every device worker and routes queue envelopes to them.
type Manager struct {
	reg *registry.Registry

	translator *appliance.Translator
	transport  sender
	journal    *journal.Journal
	banners    extern.BannerRepository
	queue      *queue.Queue

	log *slog.Logger

	workers map[int64]*Worker
}

// New builds a Manager. Workers are not started until SpawnAll.
func New(
	reg *registry.Registry,
	translator *appliance.Translator,
	tr sender,
	j *journal.Journal,
	banners extern.BannerRepository,
	q *queue.Queue,
	log *slog.Logger,
) *Manager {
	return &Manager{
		reg:        reg,
		translator: translator,
		transport:  tr,
		journal:    j,
		banners:    banners,
		queue:      q,
		log:        log,
		workers:    make(map[int64]*Worker),
	}
}

// SpawnAll creates and starts one worker goroutine per device
// currently loaded in the registry (spec §4.I: "spawns one dispatcher
// worker per device in the device-kind order of §4.B").
func (m *Manager) SpawnAll(ctx context.Context) {
	var entries []*registry.Entry
	for _, recno := range m.reg.All() {
		if entry, ok := m.reg.ByRecno(recno); ok {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Device.Kind < entries[j].Device.Kind
	})
	for _, entry := range entries {
		recno := entry.Device.RecordNumber
		w := NewWorker(m.reg, entry, m.translator, m.transport, m.journal, m.banners, m.queue, m.log)
		m.workers[recno] = w
		go w.Run(ctx)
	}
}

// Route hands env to the worker owning its HardwareRecno. It reports
// false if no such device is loaded (spec: the envelope is logged and
// dropped rather than retried, since there is nowhere to route it).
func (m *Manager) Route(ctx context.Context, env model.Envelope) bool {
	w, ok := m.workers[env.HardwareRecno]
	if !ok {
		m.log.Warn("envelope for unknown device", "hardware_recno", env.HardwareRecno, "command_type", env.CommandType)
		metrics.DispatchEventsTotal.WithLabelValues(string(env.CommandType), "unknown-device").Inc()
		return false
	}
	select {
	case w.inbox <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

// Poll runs the fan-out loop: for every (command type, source) pair a
// dispatcher worker acts on, read the oldest matching envelope and
// route it, applying the queue's cooperative poll delay when a full
// sweep finds nothing (spec §4.A edge case).
func (m *Manager) Poll(ctx context.Context, q *queue.Queue) {
	for {
		if ctx.Err() != nil {
			return
		}
		any := false
		for _, route := range routingTable {
			env, err := q.Read(ctx, route.CommandType, route.Source, model.RoleDispatcher)
			if err != nil {
				continue
			}
			any = true
			m.Route(ctx, env)
		}
		if !any {
			select {
			case <-ctx.Done():
				return
			case <-time.After(queue.PollDelay):
			}
		}
	}
}
