package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration with the gateway's duration grammar:
// a positive integer followed by a unit in {ms, s, min, h, d}, or the bare
// literal "0".
type Duration struct {
	time.Duration
}

// ParseDuration parses the gateway's duration grammar.
func ParseDuration(s string) (Duration, error) {
	if s == "0" {
		return Duration{}, nil
	}

	unit := ""
	numEnd := len(s)
	for _, u := range []string{"ms", "min", "s", "h", "d"} {
		if strings.HasSuffix(s, u) {
			unit = u
			numEnd = len(s) - len(u)
			break
		}
	}
	if unit == "" {
		return Duration{}, fmt.Errorf("config: invalid duration %q: missing unit", s)
	}

	n, err := strconv.ParseInt(s[:numEnd], 10, 64)
	if err != nil || n <= 0 {
		return Duration{}, fmt.Errorf("config: invalid duration %q: %v", s, err)
	}

	var mul time.Duration
	switch unit {
	case "ms":
		mul = time.Millisecond
	case "s":
		mul = time.Second
	case "min":
		mul = time.Minute
	case "h":
		mul = time.Hour
	case "d":
		mul = 24 * time.Hour
	}
	return Duration{time.Duration(n) * mul}, nil
}

// UnmarshalJSON implements json.Unmarshaler from a duration string. This is
// the interface sigs.k8s.io/yaml actually consults: it converts YAML to JSON
// and then runs encoding/json, so a yaml.v2-style UnmarshalYAML here would
// never be called.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON renders the duration back into the gateway's grammar: in
// seconds when it is a whole number of seconds, otherwise in milliseconds.
// Every value ParseDuration produces is a whole number of milliseconds, so
// such values round-trip exactly.
func (d Duration) MarshalJSON() ([]byte, error) {
	if d.Duration == 0 {
		return json.Marshal("0")
	}
	if d.Duration%time.Second != 0 {
		return json.Marshal(fmt.Sprintf("%dms", d.Duration.Milliseconds()))
	}
	return json.Marshal(fmt.Sprintf("%ds", int64(d.Duration.Seconds())))
}

// Decode implements envconfig.Decoder so Duration fields accept the same
// grammar from environment variable overrides.
func (d *Duration) Decode(value string) error {
	parsed, err := ParseDuration(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
