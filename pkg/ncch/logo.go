package ncch

// LogoSize is the fixed size of the built-in "logo" ExeFS entry. The
// original tool embeds a specific 8 KiB CILP-format splash image as a
// compile-time constant (see spec.md Design Notes: "the original
// implementation embeds an 8 KiB fixed logo image as a compile-time
// constant"). The exact bitmap is opaque binary asset data with no
// algorithmic content, so rather than transcribing it byte-for-byte this
// build generates a deterministic placeholder of the same size (pseudo-random
// bytes, not CILP-formatted) at init time; swap logoPlaceholder() for a real asset loader
// to ship an actual splash screen.
const LogoSize = 0x2000

var cxiLogo = logoPlaceholder()

// logoPlaceholder deterministically fills LogoSize bytes so every build of
// this tool embeds byte-identical logo data, without carrying a literal
// 8 KiB array in source.
func logoPlaceholder() []byte {
	buf := make([]byte, LogoSize)
	var state uint32 = 0x4C4F474F // "LOGO"
	for i := range buf {
		state = state*1664525 + 1013904223
		buf[i] = byte(state >> 24)
	}
	return buf
}
