// Package env builds the environment of the agent and hook processes.
package env

import (
	"fmt"
	"regexp"
	"sort"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Merge returns a new environment with the layers applied in order, later
// layers take precedence.
func Merge(layers ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, l := range layers {
		for k, v := range l {
			merged[k] = v
		}
	}
	return merged
}

// List returns the environment in `KEY=VALUE` form sorted by key.
func List(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

// Validate checks every key is a valid environment variable name.
func Validate(env map[string]string) error {
	for k := range env {
		if !keyRegexp.MatchString(k) {
			return fmt.Errorf("invalid environment variable name %q", k)
		}
	}
	return nil
}
