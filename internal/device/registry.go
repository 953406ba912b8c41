package device

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VaXeS13/MP-sub002/internal/logger"
)

// Registry tracks configured devices, their status, and which device is
// primary per type. It also binds each device id to its driver so callers
// can resolve "the active terminal" in one step.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Info
	order     []string
	terminals map[string]Terminal
	printers  map[string]FiscalPrinter

	subMu sync.Mutex
	subs  []chan StatusChange

	log zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]*Info),
		terminals: make(map[string]Terminal),
		printers:  make(map[string]FiscalPrinter),
		log:       logger.With("device-registry"),
	}
}

// Initialize builds the device set from static configuration. Enabled
// devices come up Ready; if a type has exactly one configured device it
// becomes primary automatically. A type with no devices is simply absent.
func (r *Registry) Initialize(defs []Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	perType := map[Type]int{}
	for _, d := range defs {
		if !d.Enabled {
			continue
		}
		perType[d.Type]++
	}

	now := time.Now()
	for _, d := range defs {
		info := &Info{
			ID:         d.ID,
			Type:       d.Type,
			Provider:   d.Provider,
			Model:      d.Model,
			Serial:     d.Serial,
			Connection: d.Connection,
			Enabled:    d.Enabled,
			Settings:   d.Settings,
			Status:     StatusOffline,
			LastUpdate: now,
		}
		if d.Enabled {
			info.Status = StatusReady
			if perType[d.Type] == 1 {
				info.Primary = true
			}
		}
		r.byID[d.ID] = info
		r.order = append(r.order, d.ID)
	}
	r.log.Info().Int("devices", len(defs)).Msg("Device registry initialized")
}

// BindTerminal attaches a driver to a configured terminal device.
func (r *Registry) BindTerminal(deviceID string, t Terminal) {
	r.mu.Lock()
	r.terminals[deviceID] = t
	r.mu.Unlock()
}

// BindPrinter attaches a driver to a configured fiscal printer device.
func (r *Registry) BindPrinter(deviceID string, p FiscalPrinter) {
	r.mu.Lock()
	r.printers[deviceID] = p
	r.mu.Unlock()
}

// Terminal returns the driver bound to a device id.
func (r *Registry) Terminal(deviceID string) (Terminal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.terminals[deviceID]
	return t, ok
}

// Printer returns the driver bound to a device id.
func (r *Registry) Printer(deviceID string) (FiscalPrinter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.printers[deviceID]
	return p, ok
}

// ReportStatus updates a device's status. Unknown ids log a warning and are
// ignored.
func (r *Registry) ReportStatus(deviceID string, status Status, details string) {
	r.mu.Lock()
	info, ok := r.byID[deviceID]
	if !ok {
		r.mu.Unlock()
		r.log.Warn().Str("device", deviceID).Msg("Status report for unknown device")
		return
	}
	prev := info.Status
	info.Status = status
	info.LastUpdate = time.Now()
	r.mu.Unlock()

	r.emit(StatusChange{
		DeviceID: deviceID,
		Previous: prev,
		Current:  status,
		Details:  details,
		At:       time.Now(),
	})
}

// SetPrimary makes deviceID the primary device of its type, atomically
// clearing the previous primary. Returns false if the device is unknown or
// its type does not match.
func (r *Registry) SetPrimary(t Type, deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.byID[deviceID]
	if !ok || info.Type != t {
		return false
	}
	for _, other := range r.byID {
		if other.Type == t && other.Primary {
			other.Primary = false
		}
	}
	info.Primary = true
	return true
}

// Primary returns the current primary device of a type.
func (r *Registry) Primary(t Type) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, info := range r.byID {
		if info.Type == t && info.Primary {
			cp := *info
			return &cp, true
		}
	}
	return nil, false
}

// TypeAvailable reports whether at least one enabled device of the type is
// Ready or Online.
func (r *Registry) TypeAvailable(t Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, info := range r.byID {
		if info.Type == t && info.Enabled && (info.Status == StatusReady || info.Status == StatusOnline) {
			return true
		}
	}
	return false
}

// Devices returns a snapshot of all known devices in configuration order.
func (r *Registry) Devices() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// SetEnabled flips a device's enabled flag at runtime (config reload).
func (r *Registry) SetEnabled(deviceID string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.byID[deviceID]; ok {
		info.Enabled = enabled
		info.LastUpdate = time.Now()
	}
}

// Subscribe returns a channel receiving every status change. The emitter
// never blocks: a subscriber that falls behind loses notifications.
func (r *Registry) Subscribe(buffer int) <-chan StatusChange {
	ch := make(chan StatusChange, buffer)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) emit(ev StatusChange) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
