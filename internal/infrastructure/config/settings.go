package config

import (
	"fmt"
	"time"
)

// Merge applies a flat settings map, as accepted by the plugin's Init, over
// c. Keys follow the names used by Sentry SDK options.
func (c *SentryConfig) Merge(settings map[string]any) error {
	for key, value := range settings {
		var err error
		switch key {
		case "dsn":
			c.DSN, err = asString(value)
		case "backend":
			c.Backend, err = asString(value)
		case "environment":
			c.Environment, err = asString(value)
		case "release":
			c.Release, err = asString(value)
		case "debug":
			c.Debug, err = asBool(value)
		case "tracesSampleRate", "traces_sample_rate":
			c.TracesSampleRate, err = asFloat(value)
		case "prefixes":
			c.Prefixes, err = asStrings(value)
		case "in_app_exclude":
			c.InAppExclude, err = asStrings(value)
		case "includeSchemaReflection":
			c.IncludeSchemaReflection, err = asBool(value)
		case "enableQueryLogging":
			c.EnableQueryLogging, err = asBool(value)
		case "enablePerformanceMonitoring":
			c.EnablePerformanceMonitoring, err = asBool(value)
		case "auxiliaryConnections":
			c.AuxiliaryConnections, err = asStrings(value)
		case "trustRequestStart":
			c.TrustRequestStart, err = asBool(value)
		case "otlpEndpoint":
			c.OTLPEndpoint, err = asString(value)
		case "flushTimeout":
			c.FlushTimeout, err = asDuration(value)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
		}
	}
	return nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func asStrings(v any) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got element %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	case string:
		return []string{s}, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}

func asDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(d)
	case int:
		return time.Duration(d) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}
