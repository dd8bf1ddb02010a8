package spc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCapability_Example(t *testing.T) {
	baseline := toleranced(series("G", 9, 10, 11), 8, 12)

	caps := ComputeCapability(baseline, CapabilityOptions{MinPoints: 3})
	require.Len(t, caps, 1)
	c := caps[0]

	assert.Equal(t, 3, c.N)
	assert.Equal(t, 2, c.NMR)
	assert.InDelta(t, 10.0, c.Mean, 1e-12)
	assert.InDelta(t, 1.0, c.StdOverall.V, 1e-12)
	assert.Equal(t, 8.0, c.LSL)
	assert.Equal(t, 12.0, c.USL)
	assert.Equal(t, 4.0, c.TolSpan)
	assert.False(t, c.TolInconsistent)

	assert.InDelta(t, 0.667, c.Pp.V, 1e-3)
	assert.InDelta(t, 0.667, c.Ppk.V, 1e-3)

	sigmaWithin := 1.0 / D2
	assert.InDelta(t, sigmaWithin, c.SigmaWithin.V, 1e-12)
	assert.InDelta(t, 4.0/(6*sigmaWithin), c.Cp.V, 1e-12)
	assert.InDelta(t, 2.0/(3*sigmaWithin), c.Cpk.V, 1e-12)
}

func TestComputeCapability_PpkTakesWorseSide(t *testing.T) {
	// mean 11 sits closer to usl
	baseline := toleranced(series("1", 10, 11, 12), 8, 12)

	caps := ComputeCapability(baseline, CapabilityOptions{MinPoints: 3})
	require.Len(t, caps, 1)
	c := caps[0]

	assert.InDelta(t, (12.0-11.0)/3.0, c.Ppk.V, 1e-12)
	assert.InDelta(t, (12.0-11.0)/(3*(1.0/D2)), c.Cpk.V, 1e-12)
}

func TestComputeCapability_NonPositiveSpan(t *testing.T) {
	for _, tt := range []struct {
		name     string
		lsl, usl float64
	}{
		{"zero span", 10, 10},
		{"inverted span", 12, 8},
	} {
		t.Run(tt.name, func(t *testing.T) {
			caps := ComputeCapability(toleranced(series("1", 9, 10, 11), tt.lsl, tt.usl), CapabilityOptions{MinPoints: 3})
			require.Len(t, caps, 1)
			c := caps[0]

			assert.False(t, c.Pp.Valid)
			assert.False(t, c.Ppk.Valid)
			assert.False(t, c.Cp.Valid)
			assert.False(t, c.Cpk.Valid)
			assert.True(t, c.StdOverall.Valid, "other fields stay populated")
			assert.InDelta(t, 10.0, c.Mean, 1e-12)
		})
	}
}

func TestComputeCapability_ConstantValues(t *testing.T) {
	caps := ComputeCapability(toleranced(series("1", 10, 10, 10, 10), 8, 12), CapabilityOptions{MinPoints: 4})
	require.Len(t, caps, 1)
	c := caps[0]

	assert.Equal(t, 0.0, c.StdOverall.V)
	assert.Equal(t, 0.0, c.SigmaWithin.V)
	assert.False(t, c.Pp.Valid)
	assert.False(t, c.Cp.Valid)
	assert.Equal(t, 4.0, c.TolSpan)
}

func TestCapabilityPair_GatedIndependently(t *testing.T) {
	c := Capability{Mean: 10, LSL: 8, USL: 12, TolSpan: 4}

	pp, ppk := capabilityPair(c, Some(1))
	cp, cpk := capabilityPair(c, Some(0))
	assert.True(t, pp.Valid)
	assert.True(t, ppk.Valid)
	assert.False(t, cp.Valid)
	assert.False(t, cpk.Valid)

	pp, _ = capabilityPair(c, None())
	cp, _ = capabilityPair(c, Some(2))
	assert.False(t, pp.Valid)
	assert.InDelta(t, 4.0/12.0, cp.V, 1e-12)
}

func TestComputeCapability_InconsistentTolerances(t *testing.T) {
	baseline := series("1", 9, 10, 11, 10)
	lsl := []float64{8, 8, 9, 9}
	for i := range baseline {
		baseline[i].LSL = lsl[i]
		baseline[i].USL = 12
	}

	caps := ComputeCapability(baseline, CapabilityOptions{MinPoints: 4})
	require.Len(t, caps, 1)
	c := caps[0]

	assert.Equal(t, 8.5, c.LSL, "median averages the two middle values")
	assert.Equal(t, 12.0, c.USL)
	assert.Equal(t, 2, c.TolVariantsLSL)
	assert.Equal(t, 1, c.TolVariantsUSL)
	assert.True(t, c.TolInconsistent)
	assert.InDelta(t, 3.5, c.TolSpan, 1e-12)
}

func TestComputeCapability_Thresholds(t *testing.T) {
	baseline := toleranced(series("1", 9, 10, 11), 8, 12)

	assert.Empty(t, ComputeCapability(baseline, CapabilityOptions{MinPoints: 4}), "below min points")
	assert.Empty(t, ComputeCapability(baseline, CapabilityOptions{MinPoints: 3, MinMR: intPtr(3)}), "below min moving ranges")
	assert.Len(t, ComputeCapability(baseline, CapabilityOptions{MinPoints: 3, MinMR: intPtr(2)}), 1)
	assert.Empty(t, ComputeCapability(baseline, CapabilityOptions{MinPoints: DefaultMinPoints}))
}

func TestComputeCapability_ExplicitZeroMinMR(t *testing.T) {
	baseline := toleranced(series("1", 10), 8, 12)

	assert.Empty(t, ComputeCapability(baseline, CapabilityOptions{MinPoints: 1}), "default min_mr is 1")

	caps := ComputeCapability(baseline, CapabilityOptions{MinPoints: 1, MinMR: intPtr(0)})
	require.Len(t, caps, 1)
	c := caps[0]
	assert.Equal(t, 1, c.N)
	assert.Equal(t, 0, c.NMR)
	assert.Equal(t, 10.0, c.Mean)
	assert.Equal(t, 4.0, c.TolSpan)
	assert.False(t, c.StdOverall.Valid)
	assert.False(t, c.SigmaWithin.Valid)
	for _, f := range []Float{c.Pp, c.Ppk, c.Cp, c.Cpk} {
		assert.False(t, f.Valid)
	}

	_, err := json.Marshal(caps)
	assert.NoError(t, err)
}

func TestComputeCapability_PairsFollowTheirOwnSigma(t *testing.T) {
	var baseline []Measurement
	baseline = append(baseline, toleranced(series("1", 9, 11, 9, 11, 9, 11), 8, 12)...)      // large MR, small spread
	baseline = append(baseline, toleranced(series("2", 8, 8.5, 9, 9.5, 10, 10.5), 6, 14)...) // trend
	baseline = append(baseline, toleranced(series("3", 10, 10, 10, 10), 8, 12)...)
	baseline = append(baseline, toleranced(series("4", 9, 10, 11), 12, 8)...)

	caps := ComputeCapability(baseline, CapabilityOptions{MinPoints: 3})
	require.Len(t, caps, 4)

	for _, c := range caps {
		t.Run(c.Key, func(t *testing.T) {
			overallOK := c.TolSpan > 0 && c.StdOverall.Valid && c.StdOverall.V > 0
			withinOK := c.TolSpan > 0 && c.SigmaWithin.Valid && c.SigmaWithin.V > 0
			assert.Equal(t, overallOK, c.Pp.Valid)
			assert.Equal(t, overallOK, c.Ppk.Valid)
			assert.Equal(t, withinOK, c.Cp.Valid)
			assert.Equal(t, withinOK, c.Cpk.Valid)
			if overallOK {
				assert.InDelta(t, c.TolSpan/(6*c.StdOverall.V), c.Pp.V, 1e-12)
			}
			if withinOK {
				assert.InDelta(t, c.TolSpan/(6*c.SigmaWithin.V), c.Cp.V, 1e-12)
			}
		})
	}

	// the two estimates disagree on both varying steps
	assert.Greater(t, caps[0].Pp.V, caps[0].Cp.V, "alternating values: within sigma exceeds overall")
	assert.Less(t, caps[1].Pp.V, caps[1].Cp.V, "trend: overall sigma exceeds within")
	assert.False(t, caps[2].Pp.Valid || caps[2].Cp.Valid, "constant step")
	assert.False(t, caps[3].Pp.Valid || caps[3].Cp.Valid, "inverted tolerances")
	assert.True(t, caps[3].StdOverall.Valid, "other fields stay populated")
}

func TestDefaultMinMR(t *testing.T) {
	assert.Equal(t, 199, DefaultMinMR(200))
	assert.Equal(t, 1, DefaultMinMR(1))
	assert.Equal(t, 1, DefaultMinMR(0))
}
