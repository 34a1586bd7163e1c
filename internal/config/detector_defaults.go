package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DetectorDefaults is one detType's set of static defaults, loaded from a
// YAML file at startup via gopkg.in/yaml.v3. This stands in for the
// spec's out-of-scope Python configuration for values that never change
// at run time.
type DetectorDefaults struct {
	NBuffers   int               `yaml:"nbuffers"`
	BufferSize int               `yaml:"bufferSize"`
	MaxTrSize  int               `yaml:"maxTrSize"`
	Kwargs     map[string]string `yaml:"kwargs"`
}

// DetectorDefaultsFile is the top-level shape of the defaults file: one
// entry per detType.
type DetectorDefaultsFile struct {
	Detectors map[string]DetectorDefaults `yaml:"detectors"`
}

// LoadDetectorDefaults reads and parses a detector-defaults YAML file.
func LoadDetectorDefaults(path string) (*DetectorDefaultsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read detector defaults %s: %w", path, err)
	}
	var f DetectorDefaultsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse detector defaults %s: %w", path, err)
	}
	return &f, nil
}

// ApplyDetectorDefaults overlays defaults for detType onto p wherever p
// still holds its zero value, leaving any explicit CLI flag or kwarg
// untouched. A detType with no entry in f is not an error: the built-in
// Parameters defaults still apply.
func ApplyDetectorDefaults(p *Parameters, f *DetectorDefaultsFile, detType string) {
	if f == nil {
		return
	}
	d, ok := f.Detectors[detType]
	if !ok {
		return
	}
	if d.NBuffers != 0 && p.NBuffers == 0 {
		p.NBuffers = d.NBuffers
	}
	if d.BufferSize != 0 && p.BufferSize == 0 {
		p.BufferSize = d.BufferSize
	}
	if d.MaxTrSize != 0 && p.MaxTrSize == 0 {
		p.MaxTrSize = d.MaxTrSize
	}
	if len(d.Kwargs) > 0 {
		if p.Kwargs == nil {
			p.Kwargs = map[string]string{}
		}
		for k, v := range d.Kwargs {
			if _, exists := p.Kwargs[k]; !exists {
				p.Kwargs[k] = v
			}
		}
	}
}
