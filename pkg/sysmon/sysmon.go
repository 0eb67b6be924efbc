package sysmon

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/pitlane/paddock/pkg/config"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

// sampleInterval is how often the background loop publishes a snapshot
const sampleInterval = 5 * time.Second

const gigabyte = 1 << 30

// Sampler probes the systemd units, database, and disk backing the
// provisioning server. Probes degrade into error-carrying results; the
// sampler itself never fails.
type Sampler struct {
	services []string
	diskPath string
	store    *store.Store
	bus      *events.Broker
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// NewSampler creates a sampler for the configured services and data path
func NewSampler(cfg *config.Config, st *store.Store, bus *events.Broker) *Sampler {
	return &Sampler{
		services: cfg.MonitoredServices,
		diskPath: cfg.DiskPath,
		store:    st,
		bus:      bus,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("sysmon"),
	}
}

// Start launches the background sampling loop
func (s *Sampler) Start() {
	s.logger.Info().
		Strs("services", s.services).
		Str("disk_path", s.diskPath).
		Msg("Starting health sampler")
	go s.run()
}

// Stop terminates the background loop
func (s *Sampler) Stop() {
	close(s.stopCh)
	s.logger.Info().Msg("Health sampler stopped")
}

func (s *Sampler) run() {
	s.sample()

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample publishes one snapshot, bounded so a wedged probe cannot stall
// the cadence past a tick.
func (s *Sampler) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), sampleInterval)
	defer cancel()
	s.bus.Publish(events.TopicSystemHealth, s.Snapshot(ctx))
}

// Snapshot computes a fresh health sample. Every probe failure is
// captured in the result rather than returned.
func (s *Sampler) Snapshot(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Services:  make(map[string]ServiceStatus, len(s.services)),
		Timestamp: time.Now().UTC().Format(types.ISO8601),
	}
	s.probeServices(ctx, snap)
	snap.Database = s.probeDatabase()
	snap.DiskSpace = s.probeDisk()
	return snap
}

// probeServices resolves the ActiveState of every monitored unit over
// one dbus connection. An unreachable service manager marks every unit
// down instead of failing the snapshot.
func (s *Sampler) probeServices(ctx context.Context, snap *Snapshot) {
	if len(s.services) == 0 {
		return
	}

	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Service manager unreachable")
		for _, name := range s.services {
			snap.Services[name] = ServiceStatus{Status: "error: " + err.Error()}
		}
		return
	}
	defer conn.Close()

	for _, name := range s.services {
		unit := name
		if !strings.HasSuffix(unit, ".service") {
			unit += ".service"
		}

		props, err := conn.GetUnitPropertiesContext(ctx, unit)
		if err != nil {
			snap.Services[name] = ServiceStatus{Status: "error: " + err.Error()}
			continue
		}
		state, _ := props["ActiveState"].(string)
		snap.Services[name] = ServiceStatus{
			Running: state == "active",
			Status:  state,
		}
	}
}

func (s *Sampler) probeDatabase() DatabaseStatus {
	if err := s.store.Ping(); err != nil {
		return DatabaseStatus{Error: err.Error()}
	}
	size, err := s.store.SizeMB()
	if err != nil {
		return DatabaseStatus{Accessible: true, Error: err.Error()}
	}
	return DatabaseStatus{Accessible: true, SizeMB: size}
}

func (s *Sampler) probeDisk() DiskStatus {
	var fs unix.Statfs_t
	if err := unix.Statfs(s.diskPath, &fs); err != nil {
		return DiskStatus{Error: err.Error()}
	}

	total := float64(fs.Blocks) * float64(fs.Bsize)
	available := float64(fs.Bavail) * float64(fs.Bsize)
	used := total - available

	status := DiskStatus{
		TotalGB:     roundTo(total/gigabyte, 2),
		UsedGB:      roundTo(used/gigabyte, 2),
		AvailableGB: roundTo(available/gigabyte, 2),
	}
	if total > 0 {
		status.PercentUsed = roundTo(used/total*100, 1)
	}
	return status
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
