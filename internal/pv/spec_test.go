package pv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec_Defaults(t *testing.T) {
	s, err := ParseSpec("XPP:GON:01", "pvdet", 64)
	require.NoError(t, err)
	assert.Equal(t, Spec{
		Alias: "pvdet", Provider: "pva", PVName: "XPP:GON:01", Field: "value", FirstDim: 64,
	}, s)
}

func TestParseSpec_FullForm(t *testing.T) {
	s, err := ParseSpec("sig=pva/XPP:GON:01.value,128", "pvdet", 64)
	require.NoError(t, err)
	assert.Equal(t, Spec{
		Alias: "sig", Provider: "pva", PVName: "XPP:GON:01", Field: "value", FirstDim: 128,
	}, s)
}

func TestParseSpec_AliasAndProviderTogether(t *testing.T) {
	// Regression: the original C++ re-scans the untrimmed input at each
	// separator and would misparse provider as "sig=pva" here; the
	// documented grammar requires sequential trimming instead.
	s, err := ParseSpec("sig=pva/XPP:GON:01", "pvdet", 0)
	require.NoError(t, err)
	assert.Equal(t, "pva", s.Provider)
	assert.Equal(t, "sig", s.Alias)
	assert.Equal(t, "XPP:GON:01", s.PVName)
}

func TestParseSpec_CaProvider(t *testing.T) {
	s, err := ParseSpec("ca/XPP:GON:02.rbv", "pvdet", 0)
	require.NoError(t, err)
	assert.Equal(t, "ca", s.Provider)
	assert.Equal(t, "rbv", s.Field)
}

func TestParseSpec_RejectsUnknownProvider(t *testing.T) {
	_, err := ParseSpec("bogus/XPP:GON:01", "pvdet", 0)
	assert.Error(t, err)
}

func TestParseSpec_RejectsEmpty(t *testing.T) {
	_, err := ParseSpec("", "pvdet", 0)
	assert.Error(t, err)
}

func TestParseSpec_RejectsBadFirstDim(t *testing.T) {
	_, err := ParseSpec("XPP:GON:01,notanumber", "pvdet", 0)
	assert.Error(t, err)
}
