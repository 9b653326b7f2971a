package gomdf

import (
	"math"
	"strconv"

	"github.com/ihedvall/gomdf/blocks"
)

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}

// convertToFloat applies a numeric conversion to a raw value. The returned
// flag is false when the conversion cannot produce a finite value for this
// input (singular divisor, missing parameters, unsupported algorithm).
func convertToFloat(cc *blocks.CC, raw float64, isFloatChannel bool) (float64, bool) {
	if cc == nil {
		return raw, true
	}
	switch cc.Type {
	case blocks.ConversionIdentity:
		return raw, true

	case blocks.ConversionLinear:
		if len(cc.Params) < 2 {
			return 0, false
		}
		return cc.Params[0] + cc.Params[1]*raw, true

	case blocks.ConversionRational:
		return convertRational(cc.Params, raw)

	case blocks.ConversionValueToValueInterpolate:
		return convertValueToValue(cc.Params, raw, true)

	case blocks.ConversionValueToValue:
		return convertValueToValue(cc.Params, raw, false)

	case blocks.ConversionValueRangeToValue:
		return convertValueRangeToValue(cc.Params, raw, isFloatChannel)

	case blocks.ConversionTextToValue:
		// Needs a text input; numeric channels cannot use it.
		return 0, false

	case blocks.ConversionPolynomial:
		return convertPolynomial(cc.Params, raw)

	case blocks.ConversionExponential:
		return convertExpLog(cc.Params, raw, math.Exp)

	case blocks.ConversionLogarithmic:
		return convertExpLog(cc.Params, raw, math.Log)

	case blocks.ConversionAlgebraic:
		// No defined expression grammar; fail closed.
		return 0, false

	default:
		return 0, false
	}
}

func finite(value float64) (float64, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func convertRational(params []float64, raw float64) (float64, bool) {
	if len(params) < 6 {
		return 0, false
	}
	nom := params[0]*raw*raw + params[1]*raw + params[2]
	div := params[3]*raw*raw + params[4]*raw + params[5]
	if div == 0 {
		return 0, false
	}

	return finite(nom / div)
}

func convertPolynomial(params []float64, raw float64) (float64, bool) {
	if len(params) < 6 {
		return 0, false
	}
	temp := raw - params[4] - params[5]
	div := params[2]*temp - params[0]
	if div == 0 {
		return 0, false
	}

	return finite((params[1] - params[3]*temp) / div)
}

// convertExpLog evaluates the MDF 3 exponential and logarithmic 7
// parameter forms; fn is math.Exp or math.Log.
func convertExpLog(params []float64, raw float64, fn func(float64) float64) (float64, bool) {
	if len(params) < 7 {
		return 0, false
	}
	switch {
	case params[3] == 0:
		value := (raw-params[6])*params[5] - params[2]
		if params[0] == 0 {
			return 0, false
		}
		value = fn(value / params[0])
		if params[1] == 0 {
			return 0, false
		}
		return finite(value / params[1])

	case params[0] == 0:
		temp := raw - params[6]
		if temp == 0 {
			return 0, false
		}
		value := params[2]/temp - params[5]
		if params[3] == 0 {
			return 0, false
		}
		value = fn(value / params[3])
		if params[4] == 0 {
			return 0, false
		}
		return finite(value / params[4])

	default:
		return 0, false
	}
}

// convertValueToValue evaluates key/value pair tables. Out of range inputs
// clamp to the endpoint values; between keys the result is interpolated or
// snapped to the nearer neighbor (ties towards the higher key).
func convertValueToValue(params []float64, raw float64, interpolate bool) (float64, bool) {
	if len(params) < 2 {
		return 0, false
	}
	pairs := len(params) / 2
	for n := 0; n < pairs; n++ {
		key := params[n*2]
		value := params[n*2+1]
		if raw == key {
			return value, true
		}
		if raw < key {
			if n == 0 {
				return value, true
			}
			prevKey := params[n*2-2]
			prevValue := params[n*2-1]
			keyRange := key - prevKey
			if keyRange == 0 {
				return 0, false
			}
			x := (raw - prevKey) / keyRange
			if interpolate {
				return finite(prevValue + x*(value-prevValue))
			}
			if x < 0.5 {
				return prevValue, true
			}
			return value, true
		}
	}

	return params[len(params)-1], true
}

// convertValueRangeToValue evaluates (min, max, value) triplets with a
// trailing default value. Integer channels use inclusive bounds on both
// ends; float channels exclude the upper bound.
func convertValueRangeToValue(params []float64, raw float64, isFloatChannel bool) (float64, bool) {
	triplets := (len(params) - 1) / 3
	if triplets < 1 {
		return 0, false
	}
	for n := 0; n < triplets; n++ {
		keyMin := params[n*3]
		keyMax := params[n*3+1]
		value := params[n*3+2]
		inRange := raw >= keyMin && raw <= keyMax
		if isFloatChannel {
			inRange = raw >= keyMin && raw < keyMax
		}
		if inRange {
			return value, true
		}
	}

	// Trailing default.
	return params[triplets*3], true
}

// convertToText resolves a text valued conversion for a raw value. The
// second return is false when the conversion produced no output at all.
func convertToText(cc *blocks.CC, raw float64, isFloatChannel bool) (string, bool) {
	if cc == nil {
		return "", false
	}
	switch cc.Type {
	case blocks.ConversionValueToText:
		return convertValueToText(cc, raw, isFloatChannel)
	case blocks.ConversionValueRangeToText:
		return convertValueRangeToText(cc, raw, isFloatChannel)
	default:
		return "", false
	}
}

func resolveRef(ref blocks.CCRef, raw float64, isFloatChannel bool) (string, bool) {
	if ref.Conv != nil {
		if text, ok := convertToText(ref.Conv, raw, isFloatChannel); ok {
			return text, true
		}
		if value, ok := convertToFloat(ref.Conv, raw, isFloatChannel); ok {
			return formatFloat(value), true
		}
		return "", false
	}

	return ref.Text, true
}

// convertValueToText maps exact keys to the reference list; the trailing
// reference is the default target.
func convertValueToText(cc *blocks.CC, raw float64, isFloatChannel bool) (string, bool) {
	keys := len(cc.Params)
	if len(cc.Refs) < keys+1 {
		return "", false
	}
	for n, key := range cc.Params {
		if raw == key {
			return resolveRef(cc.Refs[n], raw, isFloatChannel)
		}
	}

	return resolveRef(cc.Refs[keys], raw, isFloatChannel)
}

// convertValueRangeToText maps (min, max) pairs to the reference list.
// Integer channels use inclusive bounds on both ends; float channels
// exclude the upper bound.
func convertValueRangeToText(cc *blocks.CC, raw float64, isFloatChannel bool) (string, bool) {
	ranges := len(cc.Params) / 2
	if len(cc.Refs) < ranges+1 {
		return "", false
	}
	for n := 0; n < ranges; n++ {
		keyMin := cc.Params[n*2]
		keyMax := cc.Params[n*2+1]
		inRange := raw >= keyMin && raw <= keyMax
		if isFloatChannel {
			inRange = raw >= keyMin && raw < keyMax
		}
		if inRange {
			return resolveRef(cc.Refs[n], raw, isFloatChannel)
		}
	}

	return resolveRef(cc.Refs[ranges], raw, isFloatChannel)
}

// convertTextToValue maps an input string through a text keyed conversion.
func convertTextToValue(cc *blocks.CC, input string) (float64, bool) {
	if cc == nil || cc.Type != blocks.ConversionTextToValue {
		return 0, false
	}
	// One parameter per reference text plus the trailing default value.
	if len(cc.Params) < len(cc.Refs)+1 {
		return 0, false
	}
	for n, ref := range cc.Refs {
		if ref.Text == input {
			return cc.Params[n], true
		}
	}

	return cc.Params[len(cc.Refs)], true
}

// convertTextToTranslation maps an input string to a text output with a
// trailing default.
func convertTextToTranslation(cc *blocks.CC, input string) (string, bool) {
	if cc == nil || cc.Type != blocks.ConversionTextToTranslation {
		return "", false
	}
	pairs := len(cc.Refs) / 2
	for n := 0; n < pairs; n++ {
		if cc.Refs[n*2].Text == input {
			return cc.Refs[n*2+1].Text, true
		}
	}
	if len(cc.Refs)%2 == 1 {
		return cc.Refs[len(cc.Refs)-1].Text, true
	}

	return input, true
}
