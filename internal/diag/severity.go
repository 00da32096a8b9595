package diag

import "fmt"

// Severity orders diagnostics; higher is worse.
type Severity uint8

const (
	SevInfo Severity = iota
	// SevWarning marks recoverable problems such as an unreadable cache entry.
	SevWarning
	// SevError marks a function that could not be translated.
	SevError
)

var severityNames = [...]string{SevInfo: "info", SevWarning: "warning", SevError: "error"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// MarshalText lets severities appear by name in JSON reports.
func (s Severity) MarshalText() ([]byte, error) {
	if int(s) >= len(severityNames) {
		return nil, fmt.Errorf("diag: unknown severity %d", uint8(s))
	}
	return []byte(severityNames[s]), nil
}
