package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// durationUnits lists the accepted suffixes, longest first so "ms" is
// checked before "m" and "us"/"µs" before "s".
var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"ns", time.Nanosecond},
	{"µs", time.Microsecond},
	{"us", time.Microsecond},
	{"ms", time.Millisecond},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

const (
	minDuration = time.Microsecond
	maxDuration = 24 * time.Hour
)

// ParseDurationString parses a duration string in the ns|us|µs|ms|s|m|h
// grammar, e.g. "500ms", "1.5s", "2m30s". It rejects anything outside
// [1µs, 24h] so a typo like a missing unit can't silently become a
// nanosecond-scale no-op or a runaway multi-day stage.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty duration string")
	}

	// time.Duration's own grammar is a strict superset of ours (it already
	// accepts compound strings like "2m30s"), so delegate directly rather
	// than hand-rolling a parser the stdlib already gets right.
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	if d < minDuration {
		return 0, fmt.Errorf("config: duration %q is below the minimum of %s", s, minDuration)
	}
	if d > maxDuration {
		return 0, fmt.Errorf("config: duration %q exceeds the maximum of %s", s, maxDuration)
	}
	return d, nil
}

// ParseNumericSeconds parses a plain number (int or float) as seconds, used
// when a duration field is given as a bare number rather than a unit
// string (the resolved form of the timeout-units Open Question: numbers are
// always seconds, strings follow the unit grammar above).
func ParseNumericSeconds(n float64) (time.Duration, error) {
	d := time.Duration(n * float64(time.Second))
	if d < minDuration || d > maxDuration {
		return 0, fmt.Errorf("config: duration %gs is out of range [%s, %s]", n, minDuration, maxDuration)
	}
	return d, nil
}

// Duration is a time.Duration that unmarshals from either a unit string
// ("500ms") or a bare number of seconds, and marshals back to a string.
type Duration time.Duration

func (d Duration) Go() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		parsed, err := ParseDurationString(unquoted)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("config: duration must be a string or number, got %q", s)
	}
	parsed, err := ParseNumericSeconds(n)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!str":
		parsed, err := ParseDurationString(node.Value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	case "!!int", "!!float":
		n, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return err
		}
		parsed, err := ParseNumericSeconds(n)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	case "!!null":
		*d = 0
		return nil
	default:
		return fmt.Errorf("config: duration must be a string or number, got YAML tag %q", node.Tag)
	}
}
