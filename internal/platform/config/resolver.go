package config

import (
	"fmt"
	"os"
	"time"

	"secure-pastebox/internal/timespan"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	// envSuffix 指向環境變數名稱的鍵後綴，例如 key_storage.type_env: KEY_STORAGE_TYPE
	envSuffix = "_env"
	// defaultSuffix 配置檔內預設值的鍵後綴，例如 key_storage.type_default: Files
	defaultSuffix = "_default"
)

// Resolver 分層解析設定值
// 解析順序：環境變數（<key>_env 指定名稱）→ 直接配置值（<key>）→ 配置預設值（<key>_default）→ 程式內建預設值
type Resolver struct {
	v         *viper.Viper
	lookupEnv func(string) (string, bool)
	err       error
}

// NewResolver 創建設定解析器
func NewResolver(v *viper.Viper) *Resolver {
	return &Resolver{
		v:         v,
		lookupEnv: os.LookupEnv,
	}
}

// Err 返回解析過程中遇到的第一個錯誤
func (r *Resolver) Err() error {
	return r.err
}

// lookup 依序查找原始值，並回傳來源描述以便錯誤訊息定位
func (r *Resolver) lookup(key string) (any, string, bool) {
	if envName := r.v.GetString(key + envSuffix); envName != "" {
		if value, ok := r.lookupEnv(envName); ok {
			return value, fmt.Sprintf("environment variable '%s'", envName), true
		}
	}

	if r.v.IsSet(key) {
		return r.v.Get(key), fmt.Sprintf("configuration value at '%s'", key), true
	}

	if r.v.IsSet(key + defaultSuffix) {
		return r.v.Get(key + defaultSuffix), fmt.Sprintf("default value at '%s%s'", key, defaultSuffix), true
	}

	return nil, "", false
}

func (r *Resolver) fail(source string, raw any, typeName string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s cannot be converted to type %s. Value: '%v': %w", source, typeName, raw, err)
	}
}

// String 解析字串設定
func (r *Resolver) String(key, fallback string) string {
	raw, source, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	value, err := cast.ToStringE(raw)
	if err != nil {
		r.fail(source, raw, "string", err)
		return fallback
	}
	return value
}

// Int 解析整數設定
func (r *Resolver) Int(key string, fallback int) int {
	raw, source, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	value, err := cast.ToIntE(raw)
	if err != nil {
		r.fail(source, raw, "int", err)
		return fallback
	}
	return value
}

// Int64 解析 64 位整數設定
func (r *Resolver) Int64(key string, fallback int64) int64 {
	raw, source, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	value, err := cast.ToInt64E(raw)
	if err != nil {
		r.fail(source, raw, "int64", err)
		return fallback
	}
	return value
}

// Bool 解析布林設定
func (r *Resolver) Bool(key string, fallback bool) bool {
	raw, source, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	value, err := cast.ToBoolE(raw)
	if err != nil {
		r.fail(source, raw, "bool", err)
		return fallback
	}
	return value
}

// Duration 解析時間長度設定
// 字串使用 TimeSpan 或 Go duration 語法，數字視為秒數
func (r *Resolver) Duration(key string, fallback time.Duration) time.Duration {
	raw, source, ok := r.lookup(key)
	if !ok {
		return fallback
	}

	if text, isString := raw.(string); isString {
		value, err := timespan.Parse(text)
		if err != nil {
			r.fail(source, raw, "duration", err)
			return fallback
		}
		return value
	}

	seconds, err := cast.ToInt64E(raw)
	if err != nil {
		r.fail(source, raw, "duration", err)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
