package cxispec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jakcron/cxitool/pkg/exheader"
)

// parseMapping parses one MemoryMapping/IORegisterMapping list entry:
// "START[-END][:r]". IO mappings never accept the ":r" suffix; static
// mappings accept it only as the read-only marker. END, when given, must
// satisfy (end&0xFFF==0xFFF) or be 0; it is rejected when
// (end&0xFFF)!=0xFFF && end!=0 — the corrected boolean semantic, not the
// original's "&" vs "&&" typo.
func parseMapping(raw string, allowReadOnly bool) (exheader.MemoryMapping, error) {
	dashPos := strings.IndexByte(raw, '-')
	colonPos := strings.IndexByte(raw, ':')

	if !allowReadOnly {
		if dashPos == 0 || colonPos != -1 {
			return exheader.MemoryMapping{}, fmt.Errorf("invalid syntax in IORegisterMapping %q", raw)
		}
		return parseMappingBounds(raw, dashPos, -1, "IORegisterMapping")
	}

	var property string
	if colonPos != -1 {
		property = raw[colonPos+1:]
	}
	if dashPos == 0 || colonPos == 0 ||
		(colonPos != -1 && dashPos != -1 && colonPos < dashPos) ||
		(colonPos != -1 && property == "") {
		return exheader.MemoryMapping{}, fmt.Errorf("invalid syntax in MemoryMapping %q", raw)
	}

	mapping, err := parseMappingBounds(raw, dashPos, colonPos, "MemoryMapping")
	if err != nil {
		return exheader.MemoryMapping{}, err
	}

	if property != "" {
		if property != "r" {
			return exheader.MemoryMapping{}, fmt.Errorf("%s in MemoryMapping %q is not a valid mapping property", property, raw)
		}
		mapping.ReadOnly = true
	}

	return mapping, nil
}

func parseMappingBounds(raw string, dashPos, colonPos int, kind string) (exheader.MemoryMapping, error) {
	var startStr, endStr string
	if dashPos == -1 {
		end := len(raw)
		if colonPos != -1 {
			end = colonPos
		}
		startStr = raw[:end]
	} else {
		startStr = raw[:dashPos]
		end := len(raw)
		if colonPos != -1 {
			end = colonPos
		}
		endStr = raw[dashPos+1 : end]
	}

	start, err := strconv.ParseUint(trimHexPrefix(startStr), 16, 32)
	if err != nil {
		return exheader.MemoryMapping{}, fmt.Errorf("invalid start address in %s %q", kind, raw)
	}

	var end uint64
	if endStr != "" {
		end, err = strconv.ParseUint(trimHexPrefix(endStr), 16, 32)
		if err != nil {
			return exheader.MemoryMapping{}, fmt.Errorf("invalid end address in %s %q", kind, raw)
		}
	}

	if start&0xFFF != 0 {
		return exheader.MemoryMapping{}, fmt.Errorf("%x in %s %q is not a valid start address", start, kind, raw)
	}
	if (end&0xFFF != 0xFFF) && end != 0 {
		return exheader.MemoryMapping{}, fmt.Errorf("%x in %s %q is not a valid end address", end, kind, raw)
	}

	return exheader.MemoryMapping{Start: uint32(start), End: uint32(end)}, nil
}

// trimHexPrefix mirrors strtoul(..., 16)'s acceptance of an optional
// "0x"/"0X" prefix even when the base is already fixed to 16.
func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
