package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/gadorlhiac/pvdrp/internal/config"
)

func TestRunCmd_RequiredFlags(t *testing.T) {
	for _, name := range []string{"partition", "device", "alias", "lane-mask"} {
		flag := runCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "flag %q must be defined", name)
		assert.Equal(t, "true", flag.Annotations[cobra.BashCompOneRequiredFlag][0], "flag %q must be marked required", name)
	}
}

func TestRunCmd_OptionalFlagDefaults(t *testing.T) {
	assert.Equal(t, "0s", runCmd.Flags().Lookup("duration").DefValue)
	assert.Equal(t, "20ms", runCmd.Flags().Lookup("dma-period").DefValue)
	assert.Equal(t, "200ms", runCmd.Flags().Lookup("pv-period").DefValue)
}

func TestApplyKwargOverrides(t *testing.T) {
	params := &config.Parameters{}
	applyKwargOverrides(params, map[string]string{
		"pebbleBufCount": "64",
		"pebbleBufSize":  "2048",
		"match_tmo_ms":   "500",
	})
	assert.Equal(t, 64, params.NBuffers)
	assert.Equal(t, 2048, params.BufferSize)
	assert.Equal(t, 500, params.MatchTimeoutMs)
}

func TestApplyKwargOverrides_IgnoresMalformed(t *testing.T) {
	params := &config.Parameters{NBuffers: 10}
	applyKwargOverrides(params, map[string]string{"pebbleBufCount": "not-a-number"})
	assert.Equal(t, 10, params.NBuffers, "a malformed kwarg must leave the field untouched")
}
