// Package timespan 解析與格式化時間長度
// 同時接受 .NET TimeSpan 文字（"7.00:00:00"、"00:05:00"、"7"）與 Go duration 文字（"90s"、"1h30m"）
package timespan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat 無法辨識的時間長度格式
var ErrInvalidFormat = errors.New("invalid duration format")

const day = 24 * time.Hour

// Parse 解析時間長度文字
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidFormat
	}

	if strings.Contains(s, ":") {
		return parseClock(s)
	}

	// 純數字在 TimeSpan 語意下代表天數
	if isDigits(s) {
		days, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		return time.Duration(days) * day, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return d, nil
}

// parseClock 解析 [-][d.]hh:mm[:ss[.fffffff]]
func parseClock(s string) (time.Duration, error) {
	invalid := fmt.Errorf("%w: %q", ErrInvalidFormat, s)

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var total time.Duration
	firstColon := strings.Index(s, ":")
	if dot := strings.Index(s[:firstColon], "."); dot >= 0 {
		days, err := strconv.ParseInt(s[:dot], 10, 64)
		if err != nil || days < 0 {
			return 0, invalid
		}
		total += time.Duration(days) * day
		s = s[dot+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, invalid
	}

	hours, err := parseBounded(parts[0], 24)
	if err != nil {
		return 0, invalid
	}
	minutes, err := parseBounded(parts[1], 60)
	if err != nil {
		return 0, invalid
	}
	total += time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute

	if len(parts) == 3 {
		secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
		seconds, err := parseBounded(secPart, 60)
		if err != nil {
			return 0, invalid
		}
		total += time.Duration(seconds) * time.Second

		if hasFrac {
			// 小數部分最多 7 位（100ns 精度）
			if fracPart == "" || len(fracPart) > 7 || !isDigits(fracPart) {
				return 0, invalid
			}
			ticks, _ := strconv.ParseInt(fracPart+strings.Repeat("0", 7-len(fracPart)), 10, 64)
			total += time.Duration(ticks) * 100 * time.Nanosecond
		}
	}

	if negative {
		total = -total
	}
	return total, nil
}

func parseBounded(s string, limit int64) (int64, error) {
	if !isDigits(s) {
		return 0, ErrInvalidFormat
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v >= limit {
		return 0, ErrInvalidFormat
	}
	return v, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Format 以 TimeSpan 文字格式輸出（[-][d.]hh:mm:ss），不足一秒的部分捨去
func Format(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / day
	d -= days * day
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if days > 0 {
		return fmt.Sprintf("%s%d.%02d:%02d:%02d", sign, days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, minutes, seconds)
}
