package tools

import (
	"fmt"
	"sort"
	"strings"
)

// RemoteSet is the list of tools yielded by one connected server, in the
// order the server enumerated them.
type RemoteSet struct {
	Server string
	Tools  []Tool
}

// Aggregate merges local tools and per-server remote tools into one flat
// registry keyed by tool name. Local tools are always included; remote sets
// are merged in descriptor order. A duplicate tool name anywhere in the
// merge is an operator error: the aggregate is rejected and the error names
// every colliding tool and the parties involved.
func Aggregate(local []Tool, remote []RemoteSet) (map[string]Tool, error) {
	registry := make(map[string]Tool, len(local))
	owner := make(map[string]string, len(local))
	var collisions []string

	add := func(t Tool, from string) {
		if prev, ok := owner[t.Name]; ok {
			collisions = append(collisions, fmt.Sprintf("%s (%s vs %s)", t.Name, prev, from))
			return
		}
		registry[t.Name] = t
		owner[t.Name] = from
	}

	for _, t := range local {
		add(t, "local")
	}
	for _, set := range remote {
		for _, t := range set.Tools {
			add(t, set.Server)
		}
	}

	if len(collisions) > 0 {
		sort.Strings(collisions)
		return nil, fmt.Errorf("tools: duplicate tool names: %s", strings.Join(collisions, ", "))
	}
	return registry, nil
}

// Names returns the sorted tool names of a registry.
func Names(registry map[string]Tool) []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
