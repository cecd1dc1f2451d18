package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatSeconds formats a float seconds offset for ffmpeg arguments and filter expressions.
func FormatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	return strconv.FormatFloat(math.Round(s*1000)/1000, 'f', 3, 64)
}

// Seconds converts float seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseFrameRate parses frame rate from ffprobe format (e.g., "30/1")
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
