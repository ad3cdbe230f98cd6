package engine

import (
	"fmt"
	"sync/atomic"
)

// Settings are the runtime-adjustable parameters of a node. They are read by
// every loop and written by commands, so each field is atomic.
type Settings struct {
	privacy atomic.Uint32
	mfg     atomic.Uint32
	mesh    atomic.Bool
	debug   atomic.Int32
}

// NewSettings creates a Settings handle with the given initial values.
func NewSettings(privacy uint8, mfgCode uint16, mesh bool, debug int) *Settings {
	s := &Settings{}
	s.SetPrivacyCode(privacy)
	s.SetManufacturerCode(mfgCode)
	s.SetMeshMode(mesh)
	s.SetDebugMode(debug)
	return s
}

func (s *Settings) PrivacyCode() uint8 { return uint8(s.privacy.Load()) }
func (s *Settings) SetPrivacyCode(code uint8) { s.privacy.Store(uint32(code)) }
func (s *Settings) ManufacturerCode() uint16 { return uint16(s.mfg.Load()) }
func (s *Settings) SetManufacturerCode(c uint16) { s.mfg.Store(uint32(c)) }
func (s *Settings) MeshMode() bool { return s.mesh.Load() }
func (s *Settings) SetMeshMode(on bool) { s.mesh.Store(on) }
func (s *Settings) DebugMode() int { return int(s.debug.Load()) }
func (s *Settings) SetDebugMode(mode int) { s.debug.Store(int32(mode)) }

// String renders the settings the way /status prints them.
func (s *Settings) String() string {
	mesh := 0
	if s.MeshMode() {
		mesh = 1
	}
	return fmt.Sprintf("privcode %02X debugmode %d meshmode %d mfgcode %04X",
		s.PrivacyCode(), s.DebugMode(), mesh, s.ManufacturerCode())
}
