package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies a transform.
type Kind int

const (
	// KindEnum maps a string equal to Match to True, anything else to False.
	KindEnum Kind = iota
	// KindBoolEnum maps boolean true (or the string "true") to True, else False.
	KindBoolEnum
	// KindScale rescales [0,From] to [0,To], rounding half up and clamping.
	KindScale
	// KindRGB copies an {r,g,b} object field for field.
	KindRGB
)

func (k Kind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindBoolEnum:
		return "bool_enum"
	case KindScale:
		return "scale"
	case KindRGB:
		return "rgb"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Transform is one step in a conversion chain.
type Transform struct {
	Kind  Kind
	Match string
	True  string
	False string
	From  int
	To    int
}

// Enum returns a KindEnum transform.
func Enum(match, ifTrue, ifFalse string) Transform {
	return Transform{Kind: KindEnum, Match: match, True: ifTrue, False: ifFalse}
}

// BoolEnum returns a KindBoolEnum transform.
func BoolEnum(ifTrue, ifFalse string) Transform {
	return Transform{Kind: KindBoolEnum, True: ifTrue, False: ifFalse}
}

// Scale returns a KindScale transform.
func Scale(from, to int) Transform {
	return Transform{Kind: KindScale, From: from, To: to}
}

// ToRGB returns a KindRGB transform.
func ToRGB() Transform {
	return Transform{Kind: KindRGB}
}

// RGB is a color with channels in 0..255.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Apply runs the transform. It reports false when the input cannot be
// converted (a non-numeric brightness, a color missing a channel); the
// caller then omits the attribute.
func (t Transform) Apply(v any) (any, bool) {
	switch t.Kind {
	case KindEnum:
		if s, ok := v.(string); ok && s == t.Match {
			return t.True, true
		}
		return t.False, true

	case KindBoolEnum:
		switch b := v.(type) {
		case bool:
			if b {
				return t.True, true
			}
		case string:
			if strings.EqualFold(b, "true") {
				return t.True, true
			}
		}
		return t.False, true

	case KindScale:
		f, ok := toFloat(v)
		if !ok || t.From <= 0 {
			return nil, false
		}
		scaled := int(math.Floor(f*float64(t.To)/float64(t.From) + 0.5))
		return clamp(scaled, 0, t.To), true

	case KindRGB:
		return toRGB(v)
	}

	return nil, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// toFloat accepts JSON numbers (float64), Go integers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toRGB(v any) (any, bool) {
	switch c := v.(type) {
	case RGB:
		return RGB{R: clamp(c.R, 0, 255), G: clamp(c.G, 0, 255), B: clamp(c.B, 0, 255)}, true
	case map[string]any:
		r, okR := toFloat(c["r"])
		g, okG := toFloat(c["g"])
		b, okB := toFloat(c["b"])
		if !okR || !okG || !okB {
			return nil, false
		}
		return RGB{R: clamp(int(r), 0, 255), G: clamp(int(g), 0, 255), B: clamp(int(b), 0, 255)}, true
	default:
		return nil, false
	}
}
