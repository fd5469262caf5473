package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/extern/memory"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
	"github.com/messagenet/evodispatch/internal/transport"
)

// fakeSender records every call instead of opening a socket.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (f *fakeSender) Send(_ context.Context, _ string, _ []byte) (transport.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return transport.Result{}, f.fail
	}
	return transport.Result{Body: []byte("ok")}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T, store *memory.Store, sndr *fakeSender, device model.Device) (*Worker, *registry.Registry, *journal.Journal) {
	t.Helper()
	reg := registry.New()
	entry := reg.Load(device)

	tr := appliance.New(store, store, store, store, store)
	j, err := journal.New(t.TempDir())
	require.NoError(t, err)
	q, err := queue.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	w := NewWorker(reg, entry, tr, sndr, j, store, q, testLogger())
	return w, reg, j
}

func testDevice() model.Device {
	return model.Device{
		RecordNumber: 363,
		DeviceID:     "sign-363",
		Kind:         model.DeviceKindAppliance,
		Address:      "10.0.0.1:8080",
		MaxSeq:       4,
	}
}

func TestNewMessageSetsSlotRendersAndJournals(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{
		RecnoZX:        "345",
		RecnoTemplate:  "305",
		TextSegments:   [5]string{"hello"},
		MultimediaType: model.MultimediaNone,
	}
	sndr := &fakeSender{}
	w, reg, j := newTestWorker(t, store, sndr, testDevice())

	env := model.Envelope{
		CommandType:   model.CmdNewMessage,
		HardwareRecno: 363,
		StreamRecno:   345,
		TemplateRecno: 305,
		Sequence:      "A",
	}
	w.handle(context.Background(), env)

	slot, ok := w.entry.Slots.Get(0)
	require.True(t, ok)
	assert.Equal(t, int64(345), slot.Recno)
	assert.Equal(t, "hello", slot.Text)

	lines, err := j.ReadAll(363)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, string(lines[0]), `"345"`)

	assert.Equal(t, 1, sndr.callCount())
	entry, _ := reg.ByRecno(363)
	assert.Equal(t, model.ConnectionActive, entry.Device.Status)
	assert.Equal(t, int64(345), w.lastNewMessageRecno)
}

func TestClearSignDeletesJournalAndClearsSlots(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{RecnoZX: "345", RecnoTemplate: "305", TextSegments: [5]string{"hi"}}
	sndr := &fakeSender{}
	w, _, j := newTestWorker(t, store, sndr, testDevice())

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdNewMessage, HardwareRecno: 363, StreamRecno: 345, Sequence: "A",
	})
	lines, err := j.ReadAll(363)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	w.handle(context.Background(), model.Envelope{CommandType: model.CmdClearSign, HardwareRecno: 363})

	lines, err = j.ReadAll(363)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, ok := w.entry.Slots.Get(0)
	require.True(t, ok)
	slot, _ := w.entry.Slots.Get(0)
	assert.False(t, slot.Populated())
}

func TestSequenceChangeClearsUnreferencedAndRetransmits(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{RecnoZX: "345", RecnoTemplate: "305", TextSegments: [5]string{"a"}}
	store.Banners[346] = model.Banner{RecnoZX: "346", RecnoTemplate: "305", TextSegments: [5]string{"b"}}
	sndr := &fakeSender{}
	w, _, _ := newTestWorker(t, store, sndr, testDevice())

	w.entry.Slots.Set(0, 345, "a")
	w.entry.Slots.Set(1, 346, "b")

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdSequenceChange, HardwareRecno: 363, Sequence: "A",
	})

	s0, _ := w.entry.Slots.Get(0)
	s1, _ := w.entry.Slots.Get(1)
	assert.True(t, s0.Populated())
	assert.False(t, s1.Populated())
	assert.Equal(t, 1, sndr.callCount())
}

func TestStopMessageRemovesJournalLineAndClearsSlot(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{RecnoZX: "345", RecnoTemplate: "305", TextSegments: [5]string{"a"}}
	sndr := &fakeSender{}
	w, _, j := newTestWorker(t, store, sndr, testDevice())

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdNewMessage, HardwareRecno: 363, StreamRecno: 345, Sequence: "A",
	})

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdStopMessage, HardwareRecno: 363, StreamRecno: 345,
	})

	lines, err := j.ReadAll(363)
	require.NoError(t, err)
	assert.Empty(t, lines)

	slot, _ := w.entry.Slots.Get(0)
	assert.False(t, slot.Populated())
}

func TestSequenceChangeEchoOfNewMessageIsSuppressed(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{RecnoZX: "345", RecnoTemplate: "305", TextSegments: [5]string{"a"}}
	sndr := &fakeSender{}
	w, _, _ := newTestWorker(t, store, sndr, testDevice())

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdNewMessage, HardwareRecno: 363, StreamRecno: 345, Sequence: "A",
	})
	require.Equal(t, 1, sndr.callCount())

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdSequenceChange, HardwareRecno: 363, Sequence: "A",
	})

	assert.Equal(t, 1, sndr.callCount(), "echoing sequence-change must not retransmit")
	assert.Equal(t, int64(0), w.lastNewMessageRecno, "race marker clears after the next envelope")
}

func TestNoAddressMarksDeviceClosedAndSkipsJournal(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{RecnoZX: "345", RecnoTemplate: "305", TextSegments: [5]string{"a"}}
	sndr := &fakeSender{}
	device := testDevice()
	device.Address = ""
	w, reg, j := newTestWorker(t, store, sndr, device)

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdNewMessage, HardwareRecno: 363, StreamRecno: 345, Sequence: "A",
	})

	assert.Equal(t, 0, sndr.callCount())
	lines, err := j.ReadAll(363)
	require.NoError(t, err)
	assert.Empty(t, lines)

	entry, _ := reg.ByRecno(363)
	assert.Equal(t, model.ConnectionClosed, entry.Device.Status)
}

func TestShowSignMessagesWritesResponseEnvelopesEndingInSentinel(t *testing.T) {
	store := memory.New()
	store.Banners[345] = model.Banner{RecnoZX: "345", RecnoTemplate: "305", TextSegments: [5]string{"a"}}
	sndr := &fakeSender{}
	w, _, _ := newTestWorker(t, store, sndr, testDevice())

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdNewMessage, HardwareRecno: 363, StreamRecno: 345, Sequence: "A",
	})

	w.handle(context.Background(), model.Envelope{
		CommandType: model.CmdShowSignMessages, HardwareRecno: 363, Source: model.RoleCGI,
		Destination: model.RoleDispatcher, ReturnNode: "req-1",
	})

	ctx := context.Background()
	data, err := w.queue.Read(ctx, model.CmdShowSignMessages, model.RoleDispatcher, model.RoleCGI)
	require.NoError(t, err)
	assert.Equal(t, int64(345), data.StreamRecno)
	assert.Equal(t, "active", data.MessageType)
	assert.Equal(t, "req-1", data.ReturnNode)
	assert.False(t, data.Flag.IsSentinel())

	sentinel, err := w.queue.Read(ctx, model.CmdShowSignMessages, model.RoleDispatcher, model.RoleCGI)
	require.NoError(t, err)
	assert.True(t, sentinel.Flag.IsSentinel())
	assert.Equal(t, "req-1", sentinel.ReturnNode)
}
