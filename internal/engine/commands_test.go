package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_PrivacyCode(t *testing.T) {
	h := newHarness(t, newFakeTransport(), 0)

	h.e.input("/pc hunter2")
	assert.Equal(t, uint8(0x0A), h.e.settings.PrivacyCode())
	assert.Equal(t, []shown{{"privcode 0A", ColorSystem}}, h.disp.all())

	h.e.input("/privcode")
	assert.Zero(t, h.e.settings.PrivacyCode())
	assert.Zero(t, h.e.store.LocalLen(), "commands are never transmitted")
}

func TestCommand_Modes(t *testing.T) {
	h := newHarness(t, newFakeTransport(), 0)

	h.e.input("/dm 2")
	assert.Equal(t, 2, h.e.settings.DebugMode())
	h.e.input("/debugmode 9")
	assert.Equal(t, 2, h.e.settings.DebugMode(), "clamped to verbose")
	h.e.input("/dm")
	assert.Equal(t, 0, h.e.settings.DebugMode())

	h.e.ingest(advert(t, 7, 10, "queued", -40))
	require.Equal(t, 1, h.e.store.PoolLen())
	h.e.input("/mm 0")
	assert.False(t, h.e.settings.MeshMode())
	assert.Zero(t, h.e.store.PoolLen(), "pool dropped when relaying is turned off")
	h.e.input("/meshmode 1")
	assert.True(t, h.e.settings.MeshMode())
}

func TestCommand_ManufacturerCode(t *testing.T) {
	h := newHarness(t, newFakeTransport(), 0)

	h.e.input("/mc BEEF")
	assert.Equal(t, uint16(0xBEEF), h.e.settings.ManufacturerCode())
	h.e.input("/mfgcode nonsense")
	assert.Zero(t, h.e.settings.ManufacturerCode())
}

func TestCommand_StatusHelpQuit(t *testing.T) {
	h := newHarness(t, newFakeTransport(), 0x42)

	h.e.input("/st")
	assert.Equal(t, 1, h.disp.count("privcode 42 debugmode 0 meshmode 1 mfgcode 1122"))

	h.e.input("/?")
	assert.Equal(t, 1, h.disp.count(helpLines[0]))
	assert.Len(t, h.disp.all(), 1+len(helpLines))

	h.e.input("/q")
	select {
	case <-h.e.Done():
	default:
		t.Fatal("quit not signalled")
	}
	assert.NotPanics(t, func() { h.e.input("/quit") })
}

func TestCommand_UnknownIsSentAsText(t *testing.T) {
	h := newHarness(t, newFakeTransport(), 0)
	h.e.input("/shrug")
	assert.Equal(t, 1, h.e.store.LocalLen())
	assert.Equal(t, 1, h.disp.count("/shrug"))
}

func TestDigit(t *testing.T) {
	assert.Equal(t, 0, digit(""))
	assert.Equal(t, 0, digit("x"))
	assert.Equal(t, 1, digit("1"))
	assert.Equal(t, 7, digit("7abc"))
}
