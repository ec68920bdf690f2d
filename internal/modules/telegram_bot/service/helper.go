package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

// parseAmount понимает и "1,5".
func parseAmount(s string) (float64, error) {
	v, err := cast.ToFloat64E(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("expected positive number, got %q", s)
	}
	return v, nil
}

// parseKV: ["a=1", "b=2"] -> {a:1, b:2}
func parseKV(fields []string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("ожидается key=value, получено %q", f)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out, nil
}

func optionalPrice(kv map[string]string, key string) (*float64, error) {
	raw, ok := kv[key]
	if !ok {
		return nil, nil
	}
	v, err := parseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", key, err)
	}
	return &v, nil
}
