package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VaXeS13/MP-sub002/internal/logger"
)

func init() {
	_ = logger.Init("", "error")
}

func testDefs() []Definition {
	return []Definition{
		{ID: "term-1", Type: TypeTerminal, Provider: "mock", Model: "PAX A920", Enabled: true},
		{ID: "term-2", Type: TypeTerminal, Provider: "mock", Model: "PAX A80", Enabled: true},
		{ID: "prn-1", Type: TypeFiscalPrinter, Provider: "mock", Model: "Posnet Thermal", Enabled: true},
		{ID: "prn-off", Type: TypeFiscalPrinter, Provider: "mock", Enabled: false},
	}
}

func TestInitializeAutoPrimary(t *testing.T) {
	r := NewRegistry()
	r.Initialize(testDefs())

	// sole enabled printer becomes primary automatically
	p, ok := r.Primary(TypeFiscalPrinter)
	require.True(t, ok)
	assert.Equal(t, "prn-1", p.ID)
	assert.Equal(t, StatusReady, p.Status)

	// two terminals configured: no automatic primary
	_, ok = r.Primary(TypeTerminal)
	assert.False(t, ok)

	// disabled device stays Offline
	for _, d := range r.Devices() {
		if d.ID == "prn-off" {
			assert.Equal(t, StatusOffline, d.Status)
			assert.False(t, d.Primary)
		}
	}
}

func TestSetPrimary(t *testing.T) {
	r := NewRegistry()
	r.Initialize(testDefs())

	assert.False(t, r.SetPrimary(TypeTerminal, "unknown-id"))
	assert.False(t, r.SetPrimary(TypeTerminal, "prn-1"), "type mismatch must fail")

	require.True(t, r.SetPrimary(TypeTerminal, "term-1"))
	require.True(t, r.SetPrimary(TypeTerminal, "term-2"))

	// exactly one primary of the type, last write wins
	count := 0
	for _, d := range r.Devices() {
		if d.Type == TypeTerminal && d.Primary {
			count++
			assert.Equal(t, "term-2", d.ID)
		}
	}
	assert.Equal(t, 1, count)

	// idempotent in outcome
	require.True(t, r.SetPrimary(TypeTerminal, "term-2"))
	p, ok := r.Primary(TypeTerminal)
	require.True(t, ok)
	assert.Equal(t, "term-2", p.ID)
}

func TestReportStatus(t *testing.T) {
	r := NewRegistry()
	r.Initialize(testDefs())
	events := r.Subscribe(4)

	r.ReportStatus("term-1", StatusError, "comms failure")

	select {
	case ev := <-events:
		assert.Equal(t, "term-1", ev.DeviceID)
		assert.Equal(t, StatusReady, ev.Previous)
		assert.Equal(t, StatusError, ev.Current)
		assert.Equal(t, "comms failure", ev.Details)
	case <-time.After(time.Second):
		t.Fatal("no status change notification")
	}

	// unknown device: warned, no event, registry unchanged
	r.ReportStatus("ghost", StatusOnline, "")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for %s", ev.DeviceID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypeAvailable(t *testing.T) {
	r := NewRegistry()
	r.Initialize(testDefs())

	assert.True(t, r.TypeAvailable(TypeTerminal))
	assert.True(t, r.TypeAvailable(TypeFiscalPrinter))

	r.ReportStatus("prn-1", StatusError, "")
	assert.False(t, r.TypeAvailable(TypeFiscalPrinter), "only enabled Ready/Online devices count")

	r.ReportStatus("prn-1", StatusOnline, "")
	assert.True(t, r.TypeAvailable(TypeFiscalPrinter))
}

func TestDriverBinding(t *testing.T) {
	r := NewRegistry()
	r.Initialize(testDefs())

	term := NewMockTerminal("PAX A920", "SN1")
	r.BindTerminal("term-1", term)

	got, ok := r.Terminal("term-1")
	require.True(t, ok)
	assert.Equal(t, term, got)

	_, ok = r.Printer("prn-1")
	assert.False(t, ok)
}
