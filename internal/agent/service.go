package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VaXeS13/MP-sub002/internal/command"
	"github.com/VaXeS13/MP-sub002/internal/config"
	"github.com/VaXeS13/MP-sub002/internal/device"
	"github.com/VaXeS13/MP-sub002/internal/ledger"
	"github.com/VaXeS13/MP-sub002/internal/logger"
	"github.com/VaXeS13/MP-sub002/internal/realtime"
)

// Status is the agent lifecycle state.
type Status string

const (
	StatusStopped  Status = "Stopped"
	StatusStarting Status = "Starting"
	StatusRunning  Status = "Running"
	StatusStopping Status = "Stopping"
	StatusError    Status = "Error"
)

var (
	ErrNotInitialized     = errors.New("agent: not initialized")
	ErrAlreadyInitialized = errors.New("agent: Initialize is only valid from Stopped")
)

// Service orchestrates the queue, registry, ledger and realtime link into
// one lifecycle.
type Service struct {
	cfg      config.AppConfig
	queue    *command.Queue
	registry *device.Registry
	crk      *ledger.Ledger
	link     *realtime.Link

	mu          sync.Mutex
	status      Status
	tenantID    string
	agentID     string
	initialized bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	log zerolog.Logger
}

func New(cfg config.AppConfig, queue *command.Queue, registry *device.Registry, crk *ledger.Ledger, link *realtime.Link) *Service {
	return &Service{
		cfg:      cfg,
		queue:    queue,
		registry: registry,
		crk:      crk,
		link:     link,
		status:   StatusStopped,
		log:      logger.With("agent"),
	}
}

// Initialize wires up the device registry from configuration and binds the
// reference drivers. Only valid from Stopped.
func (s *Service) Initialize(tenantID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStopped {
		return ErrAlreadyInitialized
	}
	s.tenantID = tenantID
	s.agentID = agentID

	defs := make([]device.Definition, 0, len(s.cfg.Devices))
	for _, d := range s.cfg.Devices {
		defs = append(defs, device.Definition{
			ID:         d.ID,
			Type:       device.Type(d.Type),
			Provider:   d.Provider,
			Model:      d.Model,
			Serial:     d.Serial,
			Connection: d.Connection,
			Enabled:    d.Enabled,
			Settings:   d.Settings,
		})
	}
	s.registry.Initialize(defs)

	for _, d := range defs {
		if !d.Enabled {
			continue
		}
		switch d.Type {
		case device.TypeTerminal:
			if _, bound := s.registry.Terminal(d.ID); !bound {
				s.registry.BindTerminal(d.ID, device.NewMockTerminal(d.Model, d.Serial))
			}
		case device.TypeFiscalPrinter:
			if _, bound := s.registry.Printer(d.ID); !bound {
				s.registry.BindPrinter(d.ID, device.NewMockFiscalPrinter())
			}
		}
	}
	s.initialized = true
	return nil
}

// Start connects the realtime link, registers the agent and begins the
// worker loop. Returns false without error when already running.
func (s *Service) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return false, nil
	}
	if !s.initialized {
		s.mu.Unlock()
		return false, ErrNotInitialized
	}
	s.status = StatusStarting
	s.mu.Unlock()

	s.link.OnCommand(s.handleInbound)
	s.link.OnStateChange(s.onLinkState)

	if err := s.link.Connect(ctx, s.cfg.ServerURL, s.tenantID, s.agentID); err != nil {
		s.setStatus(StatusError)
		return false, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(3)
	go s.workerLoop(runCtx)
	go s.maintenanceLoop(runCtx)
	go s.telemetryLoop(runCtx)

	s.setStatus(StatusRunning)
	s.log.Info().Str("agent", s.agentID).Str("tenant", s.tenantID).Msg("Agent running")
	return true, nil
}

// Stop disconnects and returns the agent to Stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.status == StatusStopped || s.status == StatusStopping {
		s.mu.Unlock()
		return
	}
	s.status = StatusStopping
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.link.Disconnect()
	s.setStatus(StatusStopped)
	s.log.Info().Msg("Agent stopped")
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// IsHealthy is true iff the agent is Running, the link is connected, and at
// least one enabled device reports Ready or Online.
func (s *Service) IsHealthy() bool {
	if s.Status() != StatusRunning {
		return false
	}
	if s.link.State() != realtime.StateConnected {
		return false
	}
	for _, d := range s.registry.Devices() {
		if d.Enabled && (d.Status == device.StatusReady || d.Status == device.StatusOnline) {
			return true
		}
	}
	return false
}

// Snapshot is the registration payload pushed once per connect.
func (s *Service) Snapshot() realtime.RegistrationSnapshot {
	host, _ := os.Hostname()
	return realtime.RegistrationSnapshot{
		AgentID:     s.agentID,
		TenantID:    s.tenantID,
		MachineName: host,
		IPAddress:   localIP(),
		Devices:     s.registry.Devices(),
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}

// handleInbound deserializes one command frame and queues it. The link
// delivers the payload opaque; this is the only place it is interpreted.
func (s *Service) handleInbound(raw []byte) {
	var env command.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Error().Err(err).Msg("Malformed command dropped")
		return
	}
	if env.Header.TenantID == "" {
		env.Header.TenantID = s.tenantID
	}
	if env.Header.AgentID == "" {
		env.Header.AgentID = s.agentID
	}
	info, err := s.queue.Enqueue(&env)
	if err != nil {
		s.log.Error().Err(err).Msg("Enqueue refused")
		return
	}
	s.log.Info().Str("id", info.ID).Str("type", info.Type).Msg("Command queued")
}

// onLinkState maps link transitions onto the agent state machine: losing
// the connection while Running forces Error, recovery restores Running.
func (s *Service) onLinkState(st realtime.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.status == StatusRunning && (st == realtime.StateReconnecting || st == realtime.StateDisconnected):
		s.status = StatusError
		s.log.Warn().Str("link", string(st)).Msg("Realtime link lost, agent in Error state")
	case s.status == StatusError && st == realtime.StateConnected:
		s.status = StatusRunning
		s.log.Info().Msg("Realtime link recovered, agent Running")
	}
}

// workerLoop is the single logical consumer of the command queue.
func (s *Service) workerLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		cmd := s.queue.Dequeue(ctx)
		if cmd == nil {
			return
		}
		s.dispatch(ctx, cmd)
	}
}

// maintenanceLoop sweeps old terminal commands and checks whether a
// Z-report has become due.
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.queue.Sweep(s.cfg.Retention)
			s.checkZReportDue()
		}
	}
}

func (s *Service) checkZReportDue() {
	info, ok := s.registry.Primary(device.TypeFiscalPrinter)
	if !ok {
		return
	}
	reg, err := s.crk.Initialize(info.ID, info.Model)
	if err != nil {
		return
	}
	due, err := s.crk.IsZReportRequired(reg.ID)
	if err == nil && due {
		s.log.Warn().Str("ledger", reg.ID).Msg("Z-report is overdue")
	}
}

// telemetryLoop sends heartbeats and forwards device status changes and
// command transitions to the cloud, all best-effort.
func (s *Service) telemetryLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deviceEvents := s.registry.Subscribe(16)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.link.SendHeartbeat()
		case ev := <-deviceEvents:
			s.link.SendDeviceStatus(ev.DeviceID, string(ev.Current), ev.Details, ev.At)
		}
	}
}

// ApplyConfig re-applies hot-reloadable settings (device enabled flags).
func (s *Service) ApplyConfig(cfg config.AppConfig) {
	for _, d := range cfg.Devices {
		s.registry.SetEnabled(d.ID, d.Enabled)
	}
	s.log.Info().Msg("Configuration reloaded")
}
