package sweeper

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders bytes with 1024-based units, rounded half-up to two
// decimals with trailing zeros dropped: 1048576 -> "1 MB", 1500 -> "1.46 KB".
func FormatSize(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for math.Abs(value) >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}

	rounded := math.Floor(math.Abs(value)*100+0.5) / 100
	if value < 0 {
		rounded = -rounded
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[unit]
}
