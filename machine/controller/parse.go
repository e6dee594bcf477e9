package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
)

// ErrInvalidBanner is returned for a version banner that cannot be parsed.
var ErrInvalidBanner = errors.New("invalid version banner")

const bannerPrefix = "!0 = "

// parseBanner reports whether line is a version banner ("!0 = <version>")
// and, if so, the version it announces. The version is the third
// whitespace-separated token.
func parseBanner(line string) (float64, bool, error) {
	if !strings.HasPrefix(line, bannerPrefix) {
		return 0, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, true, fmt.Errorf("%w: %q", ErrInvalidBanner, line)
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %q", ErrInvalidBanner, line)
	}
	return v, true, nil
}

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("invalid number of elements")
	}
	vals := make([]float64, 3)
	for i, s := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return p, err
		}
	}
	return coord.Point{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// parseProbe parses a "[PRB:x,y,z:1]" report.
func parseProbe(data string) (*machine.ProbeResult, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "PRB" {
		return nil, errors.New("not a probe report: " + data)
	}

	var res machine.ProbeResult
	var err error
	res.Valid = parts[2] == "1"
	res.Point, err = parseCoords(parts[1])
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// findProbe returns the first probe report among lines.
func findProbe(lines []string) (*machine.ProbeResult, error) {
	for _, l := range lines {
		if strings.HasPrefix(l, "[PRB:") {
			return parseProbe(l)
		}
	}
	return nil, errors.New("no probe report in response")
}
