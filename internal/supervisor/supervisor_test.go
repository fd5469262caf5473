package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/dispatcher"
	"github.com/messagenet/evodispatch/internal/extern/memory"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
	"github.com/messagenet/evodispatch/internal/transport"
)

var errPingFailed = errors.New("ping failed")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePinger counts calls and always fails for addresses in Unreachable.
type fakePinger struct {
	Unreachable map[string]bool
	calls       []string
}

func (f *fakePinger) Ping(_ context.Context, addr, _ string) (transport.Result, error) {
	f.calls = append(f.calls, addr)
	if f.Unreachable[addr] {
		return transport.Result{}, errPingFailed
	}
	return transport.Result{}, nil
}

func newTestSupervisor(t *testing.T, store *memory.Store, probe pinger) (*Supervisor, *registry.Registry) {
	t.Helper()
	q, err := queue.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	reg := registry.New()
	tr := appliance.New(store, store, store, store, store)
	j, err := journal.New(t.TempDir())
	require.NoError(t, err)

	mgr := dispatcher.New(reg, tr, nopSender{}, j, store, q, testLogger())
	s := New(reg, q, mgr, probe, 10*time.Millisecond, testLogger())
	return s, reg
}

type nopSender struct{}

func (nopSender) Send(_ context.Context, _ string, _ []byte) (transport.Result, error) {
	return transport.Result{}, nil
}

func TestBootstrapLoadsDevicesListedOutOfKindOrder(t *testing.T) {
	store := memory.New()
	store.Devices = []model.Device{
		{RecordNumber: 3, DeviceID: "appliance-3", Kind: model.DeviceKindAppliance},
		{RecordNumber: 1, DeviceID: "transport-1", Kind: model.DeviceKindTransport},
		{RecordNumber: 2, DeviceID: "io-2", Kind: model.DeviceKindIO},
	}
	s, reg := newTestSupervisor(t, store, &fakePinger{})

	require.NoError(t, s.Bootstrap(context.Background(), store))

	for _, recno := range []int64{1, 2, 3} {
		_, ok := reg.ByRecno(recno)
		assert.True(t, ok, "device %d should be loaded", recno)
	}
}

func TestProbeAllUpdatesStatus(t *testing.T) {
	store := memory.New()
	probe := &fakePinger{Unreachable: map[string]bool{"down:8080": true}}
	s, reg := newTestSupervisor(t, store, probe)

	reg.Load(model.Device{RecordNumber: 1, DeviceID: "up", Address: "up:8080"})
	reg.Load(model.Device{RecordNumber: 2, DeviceID: "down", Address: "down:8080"})
	reg.Load(model.Device{RecordNumber: 3, DeviceID: "no-addr"})

	s.probeAll(context.Background())

	up, _ := reg.ByRecno(1)
	down, _ := reg.ByRecno(2)
	noAddr, _ := reg.ByRecno(3)

	assert.Equal(t, model.ConnectionActive, up.Device.Status)
	assert.Equal(t, model.ConnectionClosed, down.Device.Status)
	assert.Equal(t, model.ConnectionClosed, noAddr.Device.Status)
	assert.ElementsMatch(t, []string{"up:8080", "down:8080"}, probe.calls)
}

func TestProbeAllClearsLearnedAddressOnFailure(t *testing.T) {
	store := memory.New()
	probe := &fakePinger{Unreachable: map[string]bool{"auto:8080": true}}
	s, reg := newTestSupervisor(t, store, probe)

	reg.Load(model.Device{RecordNumber: 1, DeviceID: "auto", Address: "auto:8080", AddressAuto: true})

	s.probeAll(context.Background())

	e, _ := reg.ByRecno(1)
	assert.Empty(t, e.Device.Address)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := memory.New()
	s, _ := newTestSupervisor(t, store, &fakePinger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
