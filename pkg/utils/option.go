// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package utils

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Option is a loosely-typed configuration bag. Components that accept
// tunables take an Option so callers (and tests) can override only what
// they care about.
type Option map[string]interface{}

// GetString returns the string value for key, or an error when the key is
// absent or not a string.
func (o Option) GetString(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("option %q not set", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q is not a string", key)
	}
	return s, nil
}

// GetUint64 returns the numeric value for key. Integer-like values are
// widened; anything else errors.
func (o Option) GetUint64(key string) (uint64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("option %q not set", key)
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("option %q is negative", key)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("option %q is negative", key)
		}
		return uint64(n), nil
	case float64:
		if n < 0 {
			return 0, fmt.Errorf("option %q is negative", key)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("option %q is not numeric", key)
	}
}

// GetBool returns the boolean value for key, defaulting to false when
// absent or mistyped.
func (o Option) GetBool(key string) bool {
	v, ok := o[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetDuration reads key as milliseconds and returns the fallback when the
// option is absent or malformed.
func (o Option) GetDuration(key string, fallback time.Duration) time.Duration {
	ms, err := o.GetUint64(key)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Decode maps the option bag onto a struct using weak typing, so numeric
// and string representations coming from JSON or yaml both work.
func (o Option) Decode(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(o))
}
