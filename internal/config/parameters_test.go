package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters_WithDefaults(t *testing.T) {
	p := (&Parameters{}).WithDefaults()
	assert.Equal(t, "pv", p.DetType)
	assert.Equal(t, 2, p.TsMatchDegree)
	assert.Equal(t, 1500, p.MatchTimeoutMs)
	assert.Equal(t, 262144, p.MaxTrSize)
}

func TestParameters_Validate(t *testing.T) {
	p := &Parameters{Partition: "p", Device: "/dev/x", Alias: "det_1", LaneMask: 1, TsMatchDegree: 2}
	assert.NoError(t, p.Validate())

	p.TsMatchDegree = 1
	assert.Error(t, p.Validate(), "degree 1 must be rejected, matching the original CLI's disabled option")

	p.TsMatchDegree = 2
	p.LaneMask = 3
	assert.Error(t, p.Validate(), "lane mask must have exactly one bit set")
}

func TestValidateKwargs_RejectsUnknownKey(t *testing.T) {
	assert.NoError(t, ValidateKwargs(map[string]string{"sim_length": "10"}))
	assert.Error(t, ValidateKwargs(map[string]string{"bogus": "1"}))
}

func TestLoadDetectorDefaults_AppliesOnlyMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
detectors:
  pv:
    nbuffers: 64
    bufferSize: 4096
    kwargs:
      sim_length: "100"
`), 0o644))

	f, err := LoadDetectorDefaults(path)
	require.NoError(t, err)

	p := &Parameters{NBuffers: 128} // explicit, non-zero: must not be overwritten
	ApplyDetectorDefaults(p, f, "pv")

	assert.Equal(t, 128, p.NBuffers, "an already-set field must not be overwritten")
	assert.Equal(t, 4096, p.BufferSize)
	assert.Equal(t, "100", p.Kwargs["sim_length"])
}
