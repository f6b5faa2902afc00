package bytes

import "fmt"

const (
	kb = 1 << 10
	mb = kb << 10
	gb = mb << 10
)

// FmtMem renders a byte count with its two most significant units.
func FmtMem(n uint64) string {
	switch {
	case n >= gb:
		return fmt.Sprintf("%dGB %dMB", n/gb, n%gb/mb)
	case n >= mb:
		return fmt.Sprintf("%dMB %dKB", n/mb, n%mb/kb)
	case n >= kb:
		return fmt.Sprintf("%dKB %dB", n/kb, n%kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
