package cgiapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
)

// Action names match the form key a CGI request's first parameter
// carries (spec §4.H, §6: the action's key IS the request's action,
// e.g. "evolutionReportNetworkInfo=1&devicerecno=363&...").
const (
	actionActiveMessages           = "evolutionGetActiveMessagesForDevice"
	actionActiveMessagesRecnosOnly = "evolutionGetActiveMessagesForDevice_recnosOnly"
	actionActiveMessagesCountsOnly = "evolutionGetActiveMessagesForDevice_countsOnly"
	actionMessageDataForRecnoZX    = "evolutionGetMessageDataForRecnoZX"
	actionReportNetworkInfo        = "evolutionReportNetworkInfo"
)

// Standard response strings consumed byte-for-byte by clients (spec
// §6). None of these carry a trailing newline except the unknown-action
// response, which must.
//
// responseWTCWriteFailed has no reachable call site here: Queue.Write
// logs and swallows its own failures rather than returning one (spec
// §4.A), so this handler never observes a write failure to report.
// Kept named for the record since spec §6 lists it as one of this
// endpoint's standard strings.
const (
	responseUnknownAction   = "No command found\n"
	responseDBInitError     = "Database initialization error"
	responseCurrencyError   = "Could not set currency"
	responseWTCWriteFailed  = "WTC command failed to write."
	responseHWInfoUpdated   = "Hardware record network info updated"
	responseHWInfoUnchanged = "Hardware record network info not changed"
	responseHWInfoFailed    = "Hardware record network info failed to update"
)

// showSignMessagesTimeout bounds how long a round-trip to the
// dispatcher is awaited before giving up (mirrors the other
// bounded waits in this codebase: journal lock grace, transport
// connect/read budgets).
const showSignMessagesTimeout = 5 * time.Second

// Handler answers CGI query requests (spec §4.H). It never writes to
// the slot table or journal directly: every answer either reads
// already-published state (the journal) or round-trips a request
// through the command queue to the owning dispatcher worker.
type Handler struct {
	journal    *journal.Journal
	queue      *queue.Queue
	reg        *registry.Registry
	translator *appliance.Translator
	banners    extern.BannerRepository
	hardware   extern.HardwareRepository

	log *slog.Logger
}

// New builds a Handler.
func New(
	j *journal.Journal,
	q *queue.Queue,
	reg *registry.Registry,
	translator *appliance.Translator,
	banners extern.BannerRepository,
	hardware extern.HardwareRepository,
	log *slog.Logger,
) *Handler {
	return &Handler{
		journal:    j,
		queue:      q,
		reg:        reg,
		translator: translator,
		banners:    banners,
		hardware:   hardware,
		log:        log,
	}
}

// Handle decodes rawQuery and dispatches to the named action, returning
// the exact response body bytes to write back to the client.
func (h *Handler) Handle(ctx context.Context, rawQuery string) []byte {
	params, err := DecodeForm(rawQuery)
	if err != nil {
		h.log.Warn("cgi form decode failed", "error", err)
		return []byte(responseUnknownAction)
	}
	if len(params) == 0 {
		return []byte(responseUnknownAction)
	}

	switch params[0].Key {
	case actionActiveMessages:
		return h.activeMessages(params)
	case actionActiveMessagesRecnosOnly:
		return h.activeMessagesSummary(ctx, params, false)
	case actionActiveMessagesCountsOnly:
		return h.activeMessagesSummary(ctx, params, true)
	case actionMessageDataForRecnoZX:
		return h.messageDataForRecnoZX(ctx, params)
	case actionReportNetworkInfo:
		return h.reportNetworkInfo(ctx, params)
	default:
		return []byte(responseUnknownAction)
	}
}

// activeMessages streams the device's journal file verbatim (spec
// §4.H).
func (h *Handler) activeMessages(params []Param) []byte {
	recno, ok := recnoParam(params, "devicerecno")
	if !ok {
		return []byte(responseUnknownAction)
	}

	lines, err := h.journal.ReadAll(recno)
	if err != nil {
		return []byte(responseDBInitError)
	}

	out, err := json.Marshal(struct {
		EvolutionActiveMsgs []json.RawMessage `json:"evolution_active_msgs"`
	}{EvolutionActiveMsgs: lines})
	if err != nil {
		return []byte(responseDBInitError)
	}
	return out
}

type activeEntry struct {
	Recno int64  `json:"recno"`
	Type  string `json:"type"`
}

// activeMessagesSummary implements both the recnos-only and
// counts-only actions, which share the same show-sign-messages
// round-trip through the command queue (spec §4.H).
func (h *Handler) activeMessagesSummary(ctx context.Context, params []Param, countsOnly bool) []byte {
	recno, ok := recnoParam(params, "devicerecno")
	if !ok {
		return []byte(responseUnknownAction)
	}

	returnNode := gonanoid.Must()
	h.queue.Write(ctx, model.Envelope{
		CommandType:   model.CmdShowSignMessages,
		Source:        model.RoleCGI,
		Destination:   model.RoleDispatcher,
		HardwareRecno: recno,
		ReturnNode:    returnNode,
		Flag:          model.FlagData,
	})

	rows := h.readShowSignMessages(ctx, recno, returnNode)

	if countsOnly {
		counts := map[string]int{}
		for _, row := range rows {
			counts[row.MessageType]++
		}
		out, err := json.Marshal(counts)
		if err != nil {
			return []byte(responseDBInitError)
		}
		return out
	}

	entries := make([]activeEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, activeEntry{Recno: row.StreamRecno, Type: row.MessageType})
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return []byte(responseDBInitError)
	}
	return out
}

// readShowSignMessages reads show-sign-messages response envelopes
// addressed back to the CGI role until the sentinel carrying
// returnNode arrives, or showSignMessagesTimeout elapses.
//
// Queue.Read's filter has no returnNode argument (spec §4.A names only
// a three-part command-type/source/destination filter), so a response
// row belonging to a concurrent, different request for this same
// action can be read here first. There is no requeue primitive for
// that case; it is logged and dropped rather than misreported to this
// caller.
func (h *Handler) readShowSignMessages(ctx context.Context, hwRecno int64, returnNode string) []model.Envelope {
	var rows []model.Envelope
	deadline := time.Now().Add(showSignMessagesTimeout)
	for time.Now().Before(deadline) {
		env, err := h.queue.Read(ctx, model.CmdShowSignMessages, model.RoleDispatcher, model.RoleCGI)
		if err != nil {
			select {
			case <-ctx.Done():
				return rows
			case <-time.After(queue.PollDelay):
			}
			continue
		}
		if env.ReturnNode != returnNode {
			h.log.Warn("dropped show-sign-messages row for a different request",
				"hardware_recno", hwRecno, "return_node", env.ReturnNode)
			continue
		}
		if env.Flag.IsSentinel() {
			return rows
		}
		rows = append(rows, env)
	}
	h.log.Warn("show-sign-messages round trip timed out", "hardware_recno", hwRecno)
	metrics.DispatchEventsTotal.WithLabelValues(string(model.CmdShowSignMessages), "cgi-timeout").Inc()
	return rows
}

// messageDataForRecnoZX renders one banner's full per-message JSON
// (spec §4.D, §4.H).
func (h *Handler) messageDataForRecnoZX(ctx context.Context, params []Param) []byte {
	msgRecno, ok := recnoParam(params, "msgrecno")
	if !ok {
		return []byte(responseUnknownAction)
	}
	deviceID, ok := lookup(params, "deviceid")
	if !ok {
		return []byte(responseUnknownAction)
	}

	banner, err := h.banners.GetBanner(ctx, msgRecno)
	if err != nil {
		return []byte(responseCurrencyError)
	}
	entry, ok := h.reg.ByDeviceID(deviceID)
	if !ok {
		return []byte(responseCurrencyError)
	}

	msg, err := h.translator.Message(ctx, entry.Device, banner, 0)
	if err != nil {
		return []byte(responseCurrencyError)
	}

	out, err := json.Marshal(msg)
	if err != nil {
		return []byte(responseDBInitError)
	}
	return out
}

// reportNetworkInfo records an appliance's self-reported address and,
// when its configured method is DHCP and the address actually changed,
// persists it and notifies the owning dispatcher worker (spec §4.H,
// scenario 5). Either of the request's two method fields naming DHCP is
// enough to trigger an update, matching the original's "config OR
// current" check.
func (h *Handler) reportNetworkInfo(ctx context.Context, params []Param) []byte {
	recno, ok := recnoParam(params, "devicerecno")
	if !ok {
		return []byte(responseUnknownAction)
	}
	ip, ok := lookup(params, "ipAddress")
	if !ok {
		return []byte(responseUnknownAction)
	}
	methodConfig, _ := lookup(params, "ipMethodConfig")
	methodCurrent, _ := lookup(params, "ipMethodCurrent")

	_, currentIP, err := h.hardware.GetIPConfig(ctx, recno)
	if err != nil {
		return []byte(responseCurrencyError)
	}

	if ip == currentIP {
		return []byte(responseHWInfoUnchanged)
	}
	if !strings.EqualFold(methodConfig, string(extern.IPMethodDHCP)) && !strings.EqualFold(methodCurrent, string(extern.IPMethodDHCP)) {
		return []byte(responseHWInfoUnchanged)
	}

	if err := h.hardware.UpdateIP(ctx, recno, ip); err != nil {
		return []byte(responseHWInfoFailed)
	}

	h.queue.Write(ctx, model.Envelope{
		CommandType:   model.CmdHardwareUpdate,
		Source:        model.RoleCGI,
		Destination:   model.RoleDispatcher,
		HardwareRecno: recno,
		Message:       ip,
	})

	return []byte(responseHWInfoUpdated)
}
