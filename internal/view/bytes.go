package view

import "fmt"

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count in base-1024 units with one decimal, e.g.
// "1.5 KB". Zero is "0 B"; anything from 1024 TB upward stays in TB.
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	i := 0
	for n := bytes; n >= 1024 && i < len(byteUnits)-1; n /= 1024 {
		i++
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(int64(1)<<(10*i)), byteUnits[i])
}

// ProgressDetail renders "<completed> / <total> (<percent>%)".
func ProgressDetail(completed, total int64, percent int) string {
	return fmt.Sprintf("%s / %s (%d%%)", FormatBytes(completed), FormatBytes(total), percent)
}
