package main

import (
	"fmt"
	"strconv"
	"strings"
)

// splitAlias derives (detName, detSegment) from a -u alias argument,
// which must end with "_<digit+>".
func splitAlias(alias string) (detName string, detSegment int, err error) {
	i := strings.LastIndexByte(alias, '_')
	if i < 0 || i == len(alias)-1 || alias[i+1] < '0' || alias[i+1] > '9' {
		return "", 0, fmt.Errorf("%w: %q", ErrBadAlias, alias)
	}
	seg, convErr := strconv.Atoi(alias[i+1:])
	if convErr != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrBadAlias, alias)
	}
	return alias[:i], seg, nil
}

// parseKwargs parses "-k key=value" flags into a map, rejecting a
// malformed entry before the allowlist check (internal/config) runs.
func parseKwargs(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			return nil, fmt.Errorf("config: malformed kwarg %q, want key=value", kv)
		}
		out[kv[:i]] = kv[i+1:]
	}
	return out, nil
}
