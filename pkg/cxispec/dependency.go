package cxispec

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	systemModuleTitleID = uint64(0x0004013000000000)
	nativeFirmCore      = uint64(0x02)
)

// moduleUniqueIDs maps the short dependency aliases accepted in a
// ProcessConfig/Dependency list to their module unique id, matching the
// CTR native-firm module table. "mvd" and "qtm" additionally set bit 29 in
// their title id, reproduced verbatim below.
var moduleUniqueIDs = map[string]uint64{
	"sm":       0x10,
	"fs":       0x11,
	"pm":       0x12,
	"loader":   0x13,
	"pxi":      0x14,
	"am":       0x15,
	"camera":   0x16,
	"cfg":      0x17,
	"codec":    0x18,
	"dmnt":     0x19,
	"dsp":      0x1A,
	"gpio":     0x1B,
	"gsp":      0x1C,
	"hid":      0x1D,
	"i2c":      0x1E,
	"mcu":      0x1F,
	"mic":      0x20,
	"pdn":      0x21,
	"ptm":      0x22,
	"spi":      0x23,
	"ac":       0x24,
	"cecd":     0x26,
	"csnd":     0x27,
	"dlp":      0x28,
	"http":     0x29,
	"mp":       0x2A,
	"ndm":      0x2B,
	"nim":      0x2C,
	"nwm":      0x2D,
	"socket":   0x2E,
	"ssl":      0x2F,
	"ps":       0x31,
	"friends":  0x32,
	"ir":       0x33,
	"boss":     0x34,
	"news":     0x35,
	"debugger": 0x36,
	"ro":       0x37,
	"act":      0x38,
	"nfc":      0x40,
	"mvd":      0x41,
	"qtm":      0x42,
}

// snakeCoreModules additionally OR in the New3DS core bit over the plain
// native-firm module encoding.
var snakeCoreModules = map[string]bool{"mvd": true, "qtm": true}

// resolveDependency converts one Dependency list entry into a packed title
// id, following addDependency's alias table and three-step hex disambiguation.
func resolveDependency(raw string) (uint64, error) {
	if id, ok := moduleUniqueIDs[raw]; ok {
		depTitleID := systemModuleTitleID | nativeFirmCore | (id << 8)
		if snakeCoreModules[raw] {
			depTitleID |= 0x20000000
		}
		return depTitleID, nil
	}

	if !strings.HasPrefix(raw, "0x") {
		return 0, fmt.Errorf("unknown dependency: %s", raw)
	}

	depID, err := strconv.ParseUint(raw[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dependency id: %s", raw)
	}
	if depID == 0 {
		return 0, fmt.Errorf("invalid dependency id: 0x0")
	}

	var depTitleID uint64

	// step 1: a full title id already carrying the system-module high word.
	if depID>>32 == systemModuleTitleID>>32 {
		depTitleID = depID
	}

	// step 2: unconditionally re-checked, and can override step 1 — this
	// is the original's actual control flow, not a bug. The else branch
	// (step 3) fires whenever step 2's condition is false, even when step
	// 1 already matched.
	if (depID&0xffffffffff0fffff)>>8 > 0 {
		depTitleID = systemModuleTitleID | (depID & 0xffffffff)
	} else {
		depTitleID = systemModuleTitleID | nativeFirmCore | ((depID & 0xffffff) << 8)
	}

	return depTitleID, nil
}
