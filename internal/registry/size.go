package registry

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders n bytes with two decimals in binary units, e.g.
// 1536 -> "1.50 KB". Values beyond the TB range stay in TB.
func FormatSize(n int64) string {
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, sizeUnits[unit])
}
