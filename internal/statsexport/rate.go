package statsexport

import "fmt"

var rateSuffixes = [...]string{"b/s", "kb/s", "mb/s", "gb/s"}

// FormatRate renders a byte-per-tick rate as bits per second, scaled by
// powers of 1024, exactly as spec §4.4 describes.
func FormatRate(bytesPerSec uint32) string {
	rate := float64(bytesPerSec) * 8
	level := 0
	for rate >= 1024.0 && level < len(rateSuffixes)-1 {
		rate /= 1024
		level++
	}
	return fmt.Sprintf("%.2f %s", rate, rateSuffixes[level])
}
