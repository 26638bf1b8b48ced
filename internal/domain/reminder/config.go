// internal/domain/reminder/config.go
package reminder

import (
	"fmt"
	"strconv"
	"strings"
)

// Frequency is the recurrence step applied after every occurrence.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

var ErrUnknownFrequency = fmt.Errorf("unknown reminder frequency")

// ParseFrequency accepts the enum names case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToUpper(strings.TrimSpace(s))) {
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
}

// DefaultIdentity is the storage key used when no account is signed in.
const DefaultIdentity = "_device_default"

// Key maps an identity to its storage namespace. An empty identity is the
// single device-wide default reminder.
func Key(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return DefaultIdentity
	}
	return identity
}

// Config is the reminder configuration persisted per identity.
type Config struct {
	Enabled     bool
	Hour        int // 0..23, local wall clock at schedule time
	Minute      int // 0..59
	Frequency   Frequency
	TargetValue int // PEFR target carried to the notification, <= 0 means none
}

// DefaultConfig is what Load returns for an identity that never saved anything.
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Hour:      8,
		Minute:    0,
		Frequency: FrequencyDaily,
	}
}

// HasTarget reports whether the config carries a target payload.
func (c Config) HasTarget() bool {
	return c.TargetValue > 0
}

// Clock renders the wall-clock part as HH:MM.
func (c Config) Clock() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses an "H:MM" or "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	hourStr, minuteStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour %q must be 0-23", hourStr)
	}
	minute, err = strconv.Atoi(minuteStr)
	if err != nil || len(minuteStr) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute %q must be 00-59", minuteStr)
	}
	return hour, minute, nil
}
