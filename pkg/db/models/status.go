package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a tracked transfer. It is stored as an int.
type Status int

const (
	StatusSuccess    Status = 1
	StatusFailed     Status = 2
	StatusProcessing Status = 3
	StatusRefunded   Status = 4
)

var (
	// ActiveStatuses counts toward 24h activity and volume.
	ActiveStatuses = []Status{StatusSuccess, StatusFailed, StatusProcessing, StatusRefunded}
	// FailedStatuses counts toward failure reporting. Refunds are failures here
	// but still active for volume.
	FailedStatuses = []Status{StatusFailed, StatusRefunded}
)

var statusNames = map[Status]string{
	StatusSuccess:    "SUCCESS",
	StatusFailed:     "FAILED",
	StatusProcessing: "PROCESSING",
	StatusRefunded:   "REFUNDED",
}

func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) IsFailed() bool {
	return s == StatusFailed || s == StatusRefunded
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// ParseStatus accepts either the status name (case-insensitive) or its numeric code.
func ParseStatus(value string) (Status, error) {
	value = strings.TrimSpace(value)
	if code, err := strconv.Atoi(value); err == nil {
		status := Status(code)
		if !status.IsValid() {
			return 0, fmt.Errorf("unknown transfer status code %d", code)
		}
		return status, nil
	}
	upper := strings.ToUpper(value)
	for status, name := range statusNames {
		if name == upper {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown transfer status %q", value)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid transfer status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	status, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}
