package gomdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihedvall/gomdf/blocks"
)

func TestConvertIdentityAndLinear(t *testing.T) {
	value, ok := convertToFloat(nil, 42, false)
	require.True(t, ok)
	assert.Equal(t, 42.0, value)

	cc := &blocks.CC{Type: blocks.ConversionIdentity}
	value, ok = convertToFloat(cc, 1.5, true)
	require.True(t, ok)
	assert.Equal(t, 1.5, value)

	linear := &blocks.CC{Type: blocks.ConversionLinear, Params: []float64{10, 2}}
	value, ok = convertToFloat(linear, 4, false)
	require.True(t, ok)
	assert.Equal(t, 18.0, value)

	short := &blocks.CC{Type: blocks.ConversionLinear, Params: []float64{10}}
	_, ok = convertToFloat(short, 4, false)
	assert.False(t, ok)
}

func TestConvertRational(t *testing.T) {
	// eng = (raw^2 + raw + 0) / (0 + 0 + 2)
	cc := &blocks.CC{Type: blocks.ConversionRational, Params: []float64{1, 1, 0, 0, 0, 2}}
	value, ok := convertToFloat(cc, 3, false)
	require.True(t, ok)
	assert.Equal(t, 6.0, value)

	// Vanishing divisor fails closed.
	singular := &blocks.CC{Type: blocks.ConversionRational, Params: []float64{0, 0, 1, 0, 0, 0}}
	_, ok = convertToFloat(singular, 3, false)
	assert.False(t, ok)
}

func TestConvertValueToValueInterpolate(t *testing.T) {
	cc := &blocks.CC{
		Type:   blocks.ConversionValueToValueInterpolate,
		Params: []float64{0, 0, 10, 100},
	}

	value, _ := convertToFloat(cc, 5, false)
	assert.Equal(t, 50.0, value)

	// Exact key match.
	value, _ = convertToFloat(cc, 10, false)
	assert.Equal(t, 100.0, value)

	// Below the first key clamps to the first value.
	value, _ = convertToFloat(cc, -4, false)
	assert.Equal(t, 0.0, value)

	// Above the last key clamps to the last value.
	value, _ = convertToFloat(cc, 25, false)
	assert.Equal(t, 100.0, value)
}

func TestConvertValueToValueNearest(t *testing.T) {
	cc := &blocks.CC{
		Type:   blocks.ConversionValueToValue,
		Params: []float64{0, 0, 10, 100},
	}

	value, _ := convertToFloat(cc, 4, false)
	assert.Equal(t, 0.0, value)
	value, _ = convertToFloat(cc, 6, false)
	assert.Equal(t, 100.0, value)
	// Tie goes to the higher key value.
	value, _ = convertToFloat(cc, 5, false)
	assert.Equal(t, 100.0, value)
}

func TestConvertValueRangeToValue(t *testing.T) {
	cc := &blocks.CC{
		Type: blocks.ConversionValueRangeToValue,
		// [0,10] -> 1, [10,20] -> 2, default 99.
		Params: []float64{0, 10, 1, 10, 20, 2, 99},
	}

	// Integer channels include both bounds.
	value, _ := convertToFloat(cc, 10, false)
	assert.Equal(t, 1.0, value)
	value, _ = convertToFloat(cc, 20, false)
	assert.Equal(t, 2.0, value)
	value, _ = convertToFloat(cc, 21, false)
	assert.Equal(t, 99.0, value)

	// Float channels exclude the upper bound.
	value, _ = convertToFloat(cc, 10, true)
	assert.Equal(t, 2.0, value)
	value, _ = convertToFloat(cc, 20, true)
	assert.Equal(t, 99.0, value)
}

func TestConvertValueToText(t *testing.T) {
	cc := &blocks.CC{Type: blocks.ConversionValueToText, Params: []float64{0, 1}}
	cc.Refs = []blocks.CCRef{{Text: "Rx"}, {Text: "Tx"}, {Text: ""}}

	text, ok := convertToText(cc, 0, false)
	require.True(t, ok)
	assert.Equal(t, "Rx", text)
	text, _ = convertToText(cc, 1, false)
	assert.Equal(t, "Tx", text)
	// Unmapped keys hit the trailing default.
	text, _ = convertToText(cc, 7, false)
	assert.Equal(t, "", text)
}

func TestConvertValueRangeToText(t *testing.T) {
	cc := &blocks.CC{
		Type:   blocks.ConversionValueRangeToText,
		Params: []float64{0, 10, 20, 30},
	}
	cc.Refs = []blocks.CCRef{{Text: "low"}, {Text: "high"}, {Text: "off"}}

	text, _ := convertToText(cc, 5, false)
	assert.Equal(t, "low", text)
	text, _ = convertToText(cc, 25, false)
	assert.Equal(t, "high", text)
	text, _ = convertToText(cc, 15, false)
	assert.Equal(t, "off", text)

	// Float channels exclude the upper bound.
	text, _ = convertToText(cc, 10, true)
	assert.Equal(t, "off", text)
}

func TestConvertTextMaps(t *testing.T) {
	toValue := &blocks.CC{Type: blocks.ConversionTextToValue, Params: []float64{1, 2, -1}}
	toValue.Refs = []blocks.CCRef{{Text: "on"}, {Text: "off"}}

	value, ok := convertTextToValue(toValue, "off")
	require.True(t, ok)
	assert.Equal(t, 2.0, value)
	value, _ = convertTextToValue(toValue, "unknown")
	assert.Equal(t, -1.0, value)

	translate := &blocks.CC{Type: blocks.ConversionTextToTranslation}
	translate.Refs = []blocks.CCRef{
		{Text: "ein"}, {Text: "on"},
		{Text: "aus"}, {Text: "off"},
		{Text: "?"},
	}
	text, ok := convertTextToTranslation(translate, "aus")
	require.True(t, ok)
	assert.Equal(t, "off", text)
	text, _ = convertTextToTranslation(translate, "nope")
	assert.Equal(t, "?", text)
}

func TestConvertMdf3Forms(t *testing.T) {
	// Polynomial: eng = (p1 - p3*(raw - p4 - p5)) / (p2*(raw - p4 - p5) - p0)
	poly := &blocks.CC{Type: blocks.ConversionPolynomial, Params: []float64{-1, 6, 0, -2, 0, 0}}
	value, ok := convertToFloat(poly, 2, false)
	require.True(t, ok)
	assert.InDelta(t, 10.0, value, 1e-12)

	// Singular divisor fails closed.
	singular := &blocks.CC{Type: blocks.ConversionPolynomial, Params: []float64{0, 1, 0, 0, 0, 0}}
	_, ok = convertToFloat(singular, 2, false)
	assert.False(t, ok)

	// Logarithmic, p3 == 0 form: eng = ln(((raw-p6)*p5 - p2)/p0)/p1.
	logCC := &blocks.CC{Type: blocks.ConversionLogarithmic, Params: []float64{1, 1, 0, 0, 0, 1, 0}}
	value, ok = convertToFloat(logCC, math.E, false)
	require.True(t, ok)
	assert.InDelta(t, 1.0, value, 1e-12)

	// Non-positive log argument fails closed.
	_, ok = convertToFloat(logCC, -1, false)
	assert.False(t, ok)

	expCC := &blocks.CC{Type: blocks.ConversionExponential, Params: []float64{1, 1, 0, 0, 0, 1, 0}}
	value, ok = convertToFloat(expCC, 1, false)
	require.True(t, ok)
	assert.InDelta(t, math.E, value, 1e-12)
}

func TestConvertInverseRoundTrip(t *testing.T) {
	// eng = 2*raw + 10, inverse raw = (eng - 10) / 2.
	cc := &blocks.CC{Type: blocks.ConversionLinear, Params: []float64{10, 2}}
	cc.Inverse = &blocks.CC{Type: blocks.ConversionLinear, Params: []float64{-5, 0.5}}

	for _, raw := range []float64{-100, -1, 0, 0.5, 7, 4096} {
		eng, ok := convertToFloat(cc, raw, false)
		require.True(t, ok)
		back, ok := convertToFloat(cc.Inverse, eng, false)
		require.True(t, ok)
		assert.InDelta(t, raw, back, 1e-9)
	}
}

func TestConvertAlgebraicUnsupported(t *testing.T) {
	cc := &blocks.CC{Type: blocks.ConversionAlgebraic, Formula: "2*X+1"}
	_, ok := convertToFloat(cc, 1, false)
	assert.False(t, ok)
}
