package model

import "time"

// UnixAuto converts a unix timestamp that may be in seconds or milliseconds.
// Values too large to be a plausible seconds count are read as milliseconds.
func UnixAuto(n int64) time.Time {
	if n > 1e11 || n < -1e11 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
