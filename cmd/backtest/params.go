package main

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/mtfbacktest/internal/strategy"
)

// parseParams reads "name=value,name=value". Values stay strings; the
// strategy config coerces them to the declared kinds.
func parseParams(s string) (strategy.ParameterSet, error) {
	out := make(strategy.ParameterSet)
	for _, pair := range splitList(s) {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", pair)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("parameter %q given twice", name)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// paramsFor builds the override set of each definition. A profile applies to
// its own strategy; flag overrides apply to every definition that declares
// the name and win over the profile. A flag name no definition declares is
// an error.
func paramsFor(defs []strategy.Definition, overrides strategy.ParameterSet, profile *strategy.Profile) (map[string]strategy.ParameterSet, error) {
	used := make(map[string]bool, len(overrides))
	out := make(map[string]strategy.ParameterSet, len(defs))
	for _, def := range defs {
		ps := make(strategy.ParameterSet)
		if profile != nil && profile.Strategy == def.Name {
			for k, v := range profile.Params {
				ps[k] = v
			}
		}
		for name, v := range overrides {
			if _, ok := def.Param(name); ok {
				ps[name] = v
				used[name] = true
			}
		}
		out[def.Name] = ps
	}
	for _, name := range overrides.Names() {
		if !used[name] {
			return nil, fmt.Errorf("no selected strategy has a parameter %q", name)
		}
	}
	return out, nil
}
