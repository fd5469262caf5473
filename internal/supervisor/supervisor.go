// Package supervisor implements the Supervisor (spec §4.I): the
// dispatcher process's entry point. It loads the device registry from
// the external database in device-kind order (spec §4.B), purges stale
// queue rows left by a previous instance of this node, spawns one
// dispatcher worker per device, and runs the fan-out poll loop and the
// per-device liveness probe until its context is canceled.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/messagenet/evodispatch/internal/dispatcher"
	"github.com/messagenet/evodispatch/internal/extern"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/model"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
	"github.com/messagenet/evodispatch/internal/transport"
)

// pinger is the subset of *transport.Transport the liveness probe uses.
type pinger interface {
	Ping(ctx context.Context, addr, password string) (transport.Result, error)
}

// Supervisor owns process startup and the dispatcher's two background
// loops: the queue fan-out (internal/dispatcher.Manager.Poll) and the
// per-device liveness probe.
type Supervisor struct {
	reg     *registry.Registry
	queue   *queue.Queue
	manager *dispatcher.Manager
	probe   pinger

	probeInterval time.Duration

	log *slog.Logger
}

// New builds a Supervisor.
func New(
	reg *registry.Registry,
	q *queue.Queue,
	mgr *dispatcher.Manager,
	probe pinger,
	probeInterval time.Duration,
	log *slog.Logger,
) *Supervisor {
	return &Supervisor{
		reg:           reg,
		queue:         q,
		manager:       mgr,
		probe:         probe,
		probeInterval: probeInterval,
		log:           log,
	}
}

// Bootstrap loads every device into the registry in device-kind order
// (spec §4.B: "appliance devices are loaded after transport and IO
// devices, so transport resources exist first").
func (s *Supervisor) Bootstrap(ctx context.Context, devices extern.DeviceRepository) error {
	all, err := devices.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Kind < all[j].Kind })
	for _, d := range all {
		s.reg.Load(d)
	}
	s.log.Info("registry loaded", "devices", len(all))
	return nil
}

// Run purges stale queue rows addressed to this node, spawns one
// worker per registered device, and blocks running the queue fan-out
// and liveness-probe loops until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	n, err := s.queue.PurgeStale(ctx, model.RoleDispatcher)
	if err != nil {
		s.log.Warn("purge stale queue rows failed", "error", err)
	} else if n > 0 {
		s.log.Info("purged stale queue rows", "count", n)
	}

	s.manager.SpawnAll(ctx)
	s.log.Info("workers spawned", "devices", len(s.reg.All()))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.manager.Poll(ctx, s.queue)
	}()
	go func() {
		defer wg.Done()
		s.probeLoop(ctx)
	}()
	wg.Wait()
	return nil
}

// probeLoop issues a liveness probe against every registered device
// every probeInterval (spec §4.E: "the supervisor runs the probe on a
// 5-minute interval per device").
func (s *Supervisor) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeAll(ctx)
		}
	}
}

func (s *Supervisor) probeAll(ctx context.Context) {
	active := 0
	for _, recno := range s.reg.All() {
		entry, ok := s.reg.ByRecno(recno)
		if !ok {
			continue
		}
		if entry.Device.Address == "" {
			continue
		}

		_, err := s.probe.Ping(ctx, entry.Device.Address, entry.Device.Password)
		if err != nil {
			s.reg.SetStatus(recno, model.ConnectionClosed)
			s.reg.ClearLearnedAddress(recno)
			continue
		}
		s.reg.SetStatus(recno, model.ConnectionActive)
		active++
	}
	metrics.ActiveDevices.Set(float64(active))
}
