package rockusb

import "strconv"

// ParseProgress extracts the write percentage from a
// "Write LBA from file (NN%)" status line. Returns false for lines
// without the marker and for malformed or out-of-range values; progress
// reporting is best-effort and never fails a session.
func ParseProgress(line string) (int, bool) {
	m := reProgress.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
