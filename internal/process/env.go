// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"sort"
	"strings"
)

// mergeEnv implements spec.md §4.4's three-way environment merge (agent
// env, then the manifest entry's declared env, then the request's env;
// later wins), as an ordered []string builder rather than a map so the
// resulting argv-adjacent environment slice is order-stable across runs
// and easy to assert on in tests.
func mergeEnv(tiers ...[]string) []string {
	order := make([]string, 0)
	values := make(map[string]string)
	seen := make(map[string]bool)

	for _, tier := range tiers {
		for _, kv := range tier {
			key, val, ok := splitEnvKV(kv)
			if !ok {
				continue
			}
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
			}
			values[key] = val
		}
	}

	out := make([]string, len(order))
	for i, k := range order {
		out[i] = k + "=" + values[k]
	}
	return out
}

func splitEnvKV(s string) (key, val string, ok bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// mapToEnvSlice converts a request's env map to a "KEY=VALUE" slice in
// sorted key order, so repeated runs produce an identical merged
// environment regardless of Go's randomized map iteration order.
func mapToEnvSlice(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + m[k]
	}
	return out
}
