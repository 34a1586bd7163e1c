// Package config holds the Parameters struct the control plane and CLI
// populate, plus the detector-defaults file that carries the handful of
// static, non-run-time defaults (buffer sizing, default kwarg values) a
// run needs in place of an external configuration service. The set of
// allowed kwargs is the fixed AllowedKwargs list, not read from the file.
package config

import (
	"fmt"
	"time"

	defaults "github.com/mcuadros/go-defaults"
)

// Parameters is the process-wide configuration assembled from CLI flags.
// Fields tagged `default:"..."` are filled in by SetDefaults for any flag
// the user left unset; cobra flags that were explicitly passed overwrite
// them before SetDefaults runs (see cmd/pvdrp).
type Parameters struct {
	Partition      string `default:""`
	Device         string `default:"/dev/datadev_0"`
	Alias          string `default:""`
	LaneMask       uint32 `default:"1"`
	DetType        string `default:"pv"`
	SerNo          string `default:""`
	CollectionHost string `default:"localhost"`
	Instrument     string `default:""`
	PrometheusDir  string `default:""`

	TsMatchDegree int `default:"2"`
	Verbose       bool `default:"false"`

	// NBuffers and BufferSize size the C1 arena; MaxTrSize bounds a
	// transition's payload, default 256 KiB.
	NBuffers  int `default:"128"`
	BufferSize int `default:"1048576"`
	MaxTrSize int `default:"262144"`

	// MatchTimeoutMs is tmo, the soft-timeout watermark age in
	// milliseconds.
	MatchTimeoutMs int `default:"1500"`

	// Kwargs carries the allowlisted -k key=value pairs the CLI accepted;
	// see AllowedKwargs.
	Kwargs map[string]string
}

// MatchTimeout returns MatchTimeoutMs as a time.Duration.
func (p *Parameters) MatchTimeout() time.Duration {
	return time.Duration(p.MatchTimeoutMs) * time.Millisecond
}

// WithDefaults fills any zero-valued field tagged `default:"..."` and
// returns p for chaining, via github.com/mcuadros/go-defaults.
func (p *Parameters) WithDefaults() *Parameters {
	defaults.SetDefaults(p)
	return p
}

// Validate checks the cross-field invariants the CLI cannot express as
// per-flag defaults: required fields, the disabled degree-1 match mode,
// and the 32-PV remaining-mask bound is enforced where PV specs are
// parsed (internal/control), not here.
func (p *Parameters) Validate() error {
	if p.Partition == "" {
		return fmt.Errorf("config: partition is required")
	}
	if p.Device == "" {
		return fmt.Errorf("config: device is required")
	}
	if p.Alias == "" {
		return fmt.Errorf("config: alias is required")
	}
	if bits(p.LaneMask) != 1 {
		return fmt.Errorf("config: lane mask must have exactly one bit set, got %#x", p.LaneMask)
	}
	if p.TsMatchDegree == 1 {
		return fmt.Errorf("config: -1/--ts-match-degree=1 is disabled")
	}
	if p.TsMatchDegree != 0 && p.TsMatchDegree != 2 {
		return fmt.Errorf("config: ts-match-degree must be 0 or 2, got %d", p.TsMatchDegree)
	}
	return nil
}

func bits(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

// AllowedKwargs is the fixed allowlist of -k keys the CLI accepts beyond
// the named flags; any other kwarg is a fatal configuration error.
var AllowedKwargs = map[string]bool{
	"forceEnet":      true,
	"ep_fabric":      true,
	"ep_domain":      true,
	"ep_provider":    true,
	"sim_length":     true,
	"timebase":       true,
	"pebbleBufSize":  true,
	"pebbleBufCount": true,
	"batching":       true,
	"directIO":       true,
	"pva_addr":       true,
	"firstdim":       true,
	"match_tmo_ms":   true,
}

// ValidateKwargs rejects any key not in AllowedKwargs.
func ValidateKwargs(kwargs map[string]string) error {
	for k := range kwargs {
		if !AllowedKwargs[k] {
			return fmt.Errorf("config: unrecognized kwarg %q", k)
		}
	}
	return nil
}
