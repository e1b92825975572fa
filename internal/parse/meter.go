package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// clockRe matches "1234:30", unitRe "1234h 30m", "1234 h" or "30m".
var (
	clockRe = regexp.MustCompile(`^(\d+):([0-5]\d)$`)
	unitRe  = regexp.MustCompile(`(?i)^(?:(\d+(?:\.\d+)?)\s*(?:h|hr|hrs|hours?))?\s*(?:(\d+(?:\.\d+)?)\s*(?:m|min|mins|minutes?))?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// HourMeter parses an hour-meter reading as reported by telematics units
// into decimal hours. Thousands separators are accepted.
func HourMeter(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if s == "" {
		return 0, fmt.Errorf("empty hour meter reading")
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return checkReading(raw, v)
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		mins, _ := strconv.ParseFloat(m[2], 64)
		return checkReading(raw, h+mins/60)
	}

	if m := unitRe.FindStringSubmatch(s); m != nil && (m[1] != "" || m[2] != "") {
		var total float64
		if m[1] != "" {
			h, _ := strconv.ParseFloat(m[1], 64)
			total += h
		}
		if m[2] != "" {
			mins, _ := strconv.ParseFloat(m[2], 64)
			total += mins / 60
		}
		return checkReading(raw, total)
	}

	return 0, fmt.Errorf("unable to parse hour meter reading: %q", raw)
}

func checkReading(raw string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("hour meter reading out of range: %q", raw)
	}
	return v, nil
}

// SerialNumber normalizes a serial number as printed on plates and in
// telemetry payloads: separators and surrounding noise are removed.
func SerialNumber(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "#", "")
	return spaceRe.ReplaceAllString(s, "")
}
