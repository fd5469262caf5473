package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
	"github.com/messagenet/evodispatch/internal/transport"
)

// inboxDepth bounds how many envelopes may be queued for one device
// worker before Route blocks the poller. A single device is not
// expected to accumulate more than a handful of outstanding events
// between dispatcher steps.
const inboxDepth = 32

// sender is the subset of internal/transport.Transport the dispatcher
// needs; tests substitute a fake that never opens a socket.
type sender interface {
	Send(ctx context.Context, addr string, body []byte) (transport.Result, error)
}

// Worker is the per-device state machine of spec §4.F. It owns no
// goroutine state beyond lastNewMessageRecno; Run drives it from a
// single goroutine per device, so no further locking is needed here
// (the slot table's own mutex guards the concurrent Snapshot reads
// from diagnostics/journal paths).
type Worker struct {
	reg   *registry.Registry
	entry *registry.Entry

	translator *appliance.Translator
	transport  sender
	journal    *journal.Journal
	banners    extern.BannerRepository
	queue      *queue.Queue

	log *slog.Logger

	inbox chan model.Envelope

	// lastNewMessageRecno remembers the stream recno most recently
	// dispatched by a new-message event, cleared after the next
	// sequence-change, clear-sign, stop-message, hardware-update or
	// appliance-sync envelope is handled; show-sign-messages and
	// unhandled types leave it in place (spec §4.F: "new/seq race").
	lastNewMessageRecno int64
}

// NewWorker builds the per-device worker for entry.
func NewWorker(
	reg *registry.Registry,
	entry *registry.Entry,
	translator *appliance.Translator,
	transport sender,
	j *journal.Journal,
	banners extern.BannerRepository,
	q *queue.Queue,
	log *slog.Logger,
) *Worker {
	return &Worker{
		reg:        reg,
		entry:      entry,
		translator: translator,
		transport:  transport,
		journal:    j,
		banners:    banners,
		queue:      q,
		log:        log.With("device_recno", entry.Device.RecordNumber, "device_id", entry.Device.DeviceID),
		inbox:      make(chan model.Envelope, inboxDepth),
	}
}

// Run processes envelopes routed to this device until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-w.inbox:
			w.handle(ctx, env)
		}
	}
}

func (w *Worker) handle(ctx context.Context, env model.Envelope) {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(string(env.CommandType)).Observe(time.Since(start).Seconds())
	}()

	switch env.CommandType {
	case model.CmdNewMessage:
		w.handleNewMessage(ctx, env)
	case model.CmdSequenceChange:
		w.handleSequenceChange(ctx, env)
		w.lastNewMessageRecno = 0
	case model.CmdClearSign:
		w.handleClearSign(ctx, env)
		w.lastNewMessageRecno = 0
	case model.CmdStopMessage:
		w.handleStopMessage(ctx, env)
		w.lastNewMessageRecno = 0
	case model.CmdHardwareUpdate, model.CmdApplianceSync:
		w.handleHardwareRefresh(ctx, env)
		w.lastNewMessageRecno = 0
	case model.CmdShowSignMessages:
		w.handleShowSignMessages(ctx, env)
	default:
		w.log.Warn("unhandled command type", "command_type", env.CommandType)
		metrics.DispatchEventsTotal.WithLabelValues(string(env.CommandType), "unhandled").Inc()
	}
}

// handleNewMessage implements spec §4.F's new-message row: set slot =
// banner stream recno, store translated text; render via D; transmit
// via E; on success, append to the journal iff not already present.
func (w *Worker) handleNewMessage(ctx context.Context, env model.Envelope) {
	banner, err := w.banners.GetBanner(ctx, env.StreamRecno)
	if err != nil {
		w.log.Error("banner lookup failed", "stream_recno", env.StreamRecno, "error", err)
		metrics.DispatchEventsTotal.WithLabelValues(string(env.CommandType), "db-error").Inc()
		return
	}

	slotIndex := 0
	if indices := decodeSequence(env.Sequence); len(indices) > 0 {
		slotIndex = indices[0]
	}

	body, err := w.translator.NewMessage(ctx, w.entry.Device, banner, slotIndex)
	if err != nil {
		w.logTranslatorFailure(env.CommandType, err)
		return
	}
	msg := body.BannerMessages[0]

	w.entry.Slots.Set(slotIndex, env.StreamRecno, msg.MsgText)

	if err := w.transmit(ctx, env.CommandType, body); err != nil {
		return
	}

	if err := w.journal.Append(ctx, w.entry.Device.RecordNumber, msg); err != nil {
		w.log.Error("journal append failed", "stream_recno", env.StreamRecno, "error", err)
	}

	w.lastNewMessageRecno = env.StreamRecno
}

// handleSequenceChange implements spec §4.F's sequence-change row. The
// sequence byte-string is authoritative: slots not referenced are
// cleared, and the full remaining snapshot is re-rendered and
// retransmitted.
func (w *Worker) handleSequenceChange(ctx context.Context, env model.Envelope) {
	if w.isNewMessageEcho(env) {
		w.log.Debug("sequence-change suppressed as new-message echo", "recno", w.lastNewMessageRecno)
		metrics.DispatchEventsTotal.WithLabelValues(string(env.CommandType), "suppressed-race").Inc()
		return
	}

	referenced := make(map[int]bool)
	for _, idx := range decodeSequence(env.Sequence) {
		referenced[idx] = true
	}
	w.entry.Slots.ClearUnreferenced(func(i int) bool { return referenced[i] })

	if err := w.renderAndSendSnapshot(ctx, env.CommandType, env.Sequence); err != nil {
		return
	}
}

// isNewMessageEcho reports whether env is a sequence-change that
// merely reaffirms the slot this worker just populated via a
// new-message event (spec §4.F, §8 "new/seq race").
func (w *Worker) isNewMessageEcho(env model.Envelope) bool {
	if w.lastNewMessageRecno == 0 {
		return false
	}
	for _, idx := range decodeSequence(env.Sequence) {
		if slot, ok := w.entry.Slots.Get(idx); ok && slot.Recno == w.lastNewMessageRecno {
			return true
		}
	}
	return false
}

// handleClearSign implements spec §4.F's clear-sign row.
func (w *Worker) handleClearSign(ctx context.Context, env model.Envelope) {
	w.entry.Slots.ClearAll()

	// The accompanying sequence field (when present) names slots that
	// should survive a combined clear+reseat; ClearAll already cleared
	// everything, so this pass is a documented no-op for the pure
	// clear-sign case and only matters if a future caller relaxes
	// ClearAll above.
	if env.Sequence != "" {
		referenced := make(map[int]bool)
		for _, idx := range decodeSequence(env.Sequence) {
			referenced[idx] = true
		}
		w.entry.Slots.ClearUnreferenced(func(i int) bool { return referenced[i] })
	}

	body := w.translator.ClearSign(w.entry.Device)
	_ = w.transmit(ctx, env.CommandType, body)

	if err := w.journal.Delete(w.entry.Device.RecordNumber); err != nil {
		w.log.Error("journal delete failed", "error", err)
	}
}

// handleStopMessage implements spec §4.F's stop-message row.
func (w *Worker) handleStopMessage(ctx context.Context, env model.Envelope) {
	recnoZX := fmt.Sprintf("%d", env.StreamRecno)

	body := w.translator.StopMessage(w.entry.Device, recnoZX)
	_ = w.transmit(ctx, env.CommandType, body)

	if idx := w.entry.Slots.FindByRecno(env.StreamRecno); idx >= 0 {
		w.entry.Slots.Clear(idx)
	}

	if err := w.journal.RemoveByRecno(ctx, w.entry.Device.RecordNumber, recnoZX); err != nil {
		w.log.Error("journal remove failed", "recno_zx", recnoZX, "error", err)
	}
}

// handleHardwareRefresh implements spec §4.F's hardware-update /
// appliance-sync row: rebuild device view, re-send current snapshot.
// By convention the hardware-update envelope's Message field carries
// the newly-confirmed device address, written by the CGI handler that
// persisted it (spec is silent on this envelope's payload shape beyond
// naming the two actions).
func (w *Worker) handleHardwareRefresh(ctx context.Context, env model.Envelope) {
	if env.Message != "" {
		w.reg.SetAddress(w.entry.Device.RecordNumber, env.Message)
	}

	seq := make([]int, 0)
	for _, s := range w.entry.Slots.Snapshot() {
		seq = append(seq, s.Index)
	}

	_ = w.renderAndSendSnapshot(ctx, env.CommandType, encodeSequence(seq))
}

// handleShowSignMessages answers a CGI show-sign-messages request
// (spec §4.H) by writing one response envelope per populated slot,
// followed by an end-of-response sentinel, all carrying the request's
// ReturnNode so the CGI reader can correlate its round trip.
//
// The slot table only records (recno, text): it carries no
// waiting/hidden sub-state, so every populated slot is reported
// "active". Distinguishing waiting/hidden/unknown would require a
// richer per-slot visibility model this core does not have grounding
// for; this mirrors the spec's own "deliberate gaps" guidance (§9)
// rather than inventing a classification.
func (w *Worker) handleShowSignMessages(ctx context.Context, env model.Envelope) {
	for _, s := range w.entry.Slots.Snapshot() {
		w.queue.Write(ctx, model.Envelope{
			CommandType:   model.CmdShowSignMessages,
			Source:        model.RoleDispatcher,
			Destination:   model.RoleCGI,
			HardwareRecno: env.HardwareRecno,
			StreamRecno:   s.Slot.Recno,
			MessageType:   "active",
			ReturnNode:    env.ReturnNode,
			Flag:          model.FlagData,
		})
	}
	w.queue.Write(ctx, model.Envelope{
		CommandType:   model.CmdShowSignMessages,
		Source:        model.RoleDispatcher,
		Destination:   model.RoleCGI,
		HardwareRecno: env.HardwareRecno,
		ReturnNode:    env.ReturnNode,
		Flag:          model.FlagEndOfResponse,
	})
	metrics.DispatchEventsTotal.WithLabelValues(string(env.CommandType), "ok").Inc()
}

// renderAndSendSnapshot renders every currently populated slot as one
// updateseq body and transmits it (shared by sequence-change and
// hardware-update/appliance-sync).
func (w *Worker) renderAndSendSnapshot(ctx context.Context, cmdType model.CommandType, seqString string) error {
	snapshot := w.entry.Slots.Snapshot()
	entries := make([]appliance.SlotEntry, 0, len(snapshot))
	for _, s := range snapshot {
		banner, err := w.banners.GetBanner(ctx, s.Slot.Recno)
		if err != nil {
			w.log.Error("banner lookup failed during snapshot render", "recno", s.Slot.Recno, "error", err)
			metrics.DispatchEventsTotal.WithLabelValues(string(cmdType), "db-error").Inc()
			return err
		}
		entries = append(entries, appliance.SlotEntry{SlotIndex: s.Index, Banner: banner})
	}

	body, err := w.translator.Sequence(ctx, w.entry.Device, seqString, entries)
	if err != nil {
		w.logTranslatorFailure(cmdType, err)
		return err
	}

	return w.transmit(ctx, cmdType, body)
}

// transmit resolves the device's address, marshals body, and sends it
// over the transport, updating connection status and the auto-address
// hint per spec §4.E. Transport failures are logged and not retried at
// this layer (spec §4.F failure semantics); the envelope is still
// considered consumed by the caller.
func (w *Worker) transmit(ctx context.Context, cmdType model.CommandType, body any) error {
	device := w.entry.Device
	if device.Address == "" {
		w.reg.SetStatus(device.RecordNumber, model.ConnectionClosed)
		w.log.Warn("appliance address unknown")
		metrics.DispatchEventsTotal.WithLabelValues(string(cmdType), "no-address").Inc()
		return evoerr.ErrNoAddress
	}

	payload, err := json.Marshal(body)
	if err != nil {
		w.log.Error("wire body marshal failed", "error", err)
		metrics.DispatchEventsTotal.WithLabelValues(string(cmdType), "marshal-error").Inc()
		return err
	}

	if _, err := w.transport.Send(ctx, device.Address, payload); err != nil {
		w.reg.SetStatus(device.RecordNumber, model.ConnectionClosed)
		if errors.Is(err, evoerr.ErrConnectFailed) && device.AddressAuto {
			w.reg.ClearLearnedAddress(device.RecordNumber)
		}
		w.log.Warn("appliance transmit failed", "command_type", cmdType, "error", err)
		metrics.DispatchEventsTotal.WithLabelValues(string(cmdType), "transport-error").Inc()
		return err
	}

	w.reg.SetStatus(device.RecordNumber, model.ConnectionActive)
	metrics.DispatchEventsTotal.WithLabelValues(string(cmdType), "ok").Inc()
	return nil
}

func (w *Worker) logTranslatorFailure(cmdType model.CommandType, err error) {
	if errors.Is(err, evoerr.ErrTranslatorUnsupported) {
		w.log.Warn("translator does not support this command/banner combination", "command_type", cmdType, "error", err)
	} else {
		w.log.Error("translator failed", "command_type", cmdType, "error", err)
	}
	metrics.DispatchEventsTotal.WithLabelValues(string(cmdType), "translator-error").Inc()
}
