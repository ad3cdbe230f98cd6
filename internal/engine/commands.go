package engine

import (
	"fmt"
	"strings"

	"github.com/SWAI-Ltd/btbmesh/internal/checksum"
	"github.com/SWAI-Ltd/btbmesh/internal/logging"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

var helpLines = []string{
	"/pc, /privcode <passphrase>  set the privacy code (empty clears it)",
	"/dm, /debugmode <0|1|2>      set the debug mode",
	"/mm, /meshmode <0|1>         relay packets for others",
	"/mc, /mfgcode <hex>          set the manufacturer code",
	"/st, /status                 show the current settings",
	"/q, /quit                    leave",
	"/?                           this help",
}

// command runs line if it is a command and reports whether it was one.
// Unknown slash words are sent as ordinary text.
func (e *Engine) command(line string) bool {
	if !strings.HasPrefix(line, "/") {
		return false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/pc", "/privcode":
		e.settings.SetPrivacyCode(checksum.PrivacyCode(arg))
		e.status(fmt.Sprintf("privcode %02X", e.settings.PrivacyCode()))
	case "/dm", "/debugmode":
		mode := digit(arg)
		if mode > logging.DebugVerbose {
			mode = logging.DebugVerbose
		}
		e.settings.SetDebugMode(mode)
		e.status(fmt.Sprintf("debugmode %d", mode))
	case "/mm", "/meshmode":
		on := digit(arg) != 0
		e.settings.SetMeshMode(on)
		if !on {
			e.store.DropCandidates()
		}
		mode := 0
		if on {
			mode = 1
		}
		e.status(fmt.Sprintf("meshmode %d", mode))
	case "/mc", "/mfgcode":
		code, err := proto.ParseManufacturerCode(arg)
		if err != nil {
			code = 0
		}
		e.settings.SetManufacturerCode(code)
		e.status(fmt.Sprintf("mfgcode %04X", code))
	case "/st", "/status":
		e.status(e.settings.String())
	case "/q", "/quit":
		e.status("bye")
		e.requestQuit()
	case "/?":
		for _, l := range helpLines {
			e.show(l, ColorSystem)
		}
	default:
		return false
	}
	return true
}

func (e *Engine) status(msg string) {
	e.log().Info().Msg(msg)
	e.show(msg, ColorSystem)
}

// digit reads the leading decimal digit of arg, or 0.
func digit(arg string) int {
	if arg == "" || arg[0] < '0' || arg[0] > '9' {
		return 0
	}
	return int(arg[0] - '0')
}
