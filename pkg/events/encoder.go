package events

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Confidence is a float64 that marshals with at most 4 significant digits,
// keeping wire output stable across recomputations that differ only in
// floating-point noise.
type Confidence float64

// MarshalJSON implements json.Marshaler.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, RoundSig(float64(c), 4), 'g', -1, 64), nil
}

// RoundSig rounds v to n significant digits.
func RoundSig(v float64, n int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	mag := math.Ceil(math.Log10(math.Abs(v)))
	scale := math.Pow(10, float64(n)-mag)
	return math.Round(v*scale) / scale
}

// Encode produces one wire record: "<kind>\t<json>\n". The payload must
// marshal to a JSON object.
func Encode(kind string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	out := make([]byte, 0, len(kind)+len(body)+2)
	out = append(out, kind...)
	out = append(out, '\t')
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// TruncateRaw bounds a raw payload to capBytes. Oversized payloads are
// replaced by a valid JSON envelope flagging the truncation; the second
// return value reports whether truncation happened.
func TruncateRaw(raw json.RawMessage, capBytes int) (json.RawMessage, bool) {
	if len(raw) <= capBytes {
		return raw, false
	}
	env, _ := json.Marshal(map[string]any{
		"truncated":      true,
		"original_bytes": len(raw),
	})
	return env, true
}
