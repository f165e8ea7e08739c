package keys

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"secure-pastebox/internal/timespan"
)

type expirationKind int

const (
	expirationDefault expirationKind = iota
	expirationNever
	expirationAfter
)

// Expiration 保存時的過期設定.
// 零值代表使用配置的預設過期時間；Never 與預設是不同的兩件事.
type Expiration struct {
	kind     expirationKind
	duration time.Duration
}

// UseDefault 使用配置的預設過期時間.
func UseDefault() Expiration {
	return Expiration{kind: expirationDefault}
}

// Never 永不過期.
func Never() Expiration {
	return Expiration{kind: expirationNever}
}

// After 在 d 之後過期.
func After(d time.Duration) Expiration {
	return Expiration{kind: expirationAfter, duration: d}
}

// IsDefault 是否使用預設值.
func (e Expiration) IsDefault() bool { return e.kind == expirationDefault }

// IsNever 是否永不過期.
func (e Expiration) IsNever() bool { return e.kind == expirationNever }

// Duration 明確指定的過期時間，其他情況返回 false.
func (e Expiration) Duration() (time.Duration, bool) {
	return e.duration, e.kind == expirationAfter
}

func (e Expiration) String() string {
	switch e.kind {
	case expirationNever:
		return "never"
	case expirationAfter:
		return timespan.Format(e.duration)
	default:
		return "default"
	}
}

// MarshalJSON 預設為 null，永不過期為 "never"，其餘為 TimeSpan 文字.
func (e Expiration) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case expirationNever:
		return []byte(`"never"`), nil
	case expirationAfter:
		return json.Marshal(timespan.Format(e.duration))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 接受 null、"never"、TimeSpan 或 Go duration 文字、以秒為單位的數字.
func (e *Expiration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = UseDefault()
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		parsed, err := ParseExpiration(text)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("%w: expiration must be a string, number or null", ErrInvalidExpiration)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds > math.MaxInt64/float64(time.Second) {
		return ErrInvalidExpiration
	}
	*e = After(time.Duration(seconds * float64(time.Second)))
	return nil
}

// ParseExpiration 解析文字形式的過期設定，空字串視為預設.
func ParseExpiration(text string) (Expiration, error) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "":
		return UseDefault(), nil
	case "never":
		return Never(), nil
	}

	d, err := timespan.Parse(text)
	if err != nil {
		return Expiration{}, errors.Join(ErrInvalidExpiration, err)
	}
	return After(d), nil
}
