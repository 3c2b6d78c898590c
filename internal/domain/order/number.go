package order

import (
	"errors"
	"fmt"
	"time"
)

// MaxDailySequence is the largest sequence a four digit suffix can carry.
const MaxDailySequence = 9999

var ErrNumberSpaceExhausted = errors.New("order: daily order number space exhausted")

// FormatNumber renders PREFIX + YYYYMMDD + zero-padded 4-digit sequence.
func FormatNumber(prefix string, day time.Time, seq int) (string, error) {
	if seq < 1 || seq > MaxDailySequence {
		return "", ErrNumberSpaceExhausted
	}
	return fmt.Sprintf("%s%s%04d", prefix, day.UTC().Format("20060102"), seq), nil
}

// DayKey is the date component used to scope daily sequences.
func DayKey(day time.Time) string {
	return day.UTC().Format("20060102")
}
