package backend

import (
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	ambientOnce sync.Once
	ambientEnv  []string
)

// ambientEnvironment snapshots os.Environ once per process.
func ambientEnvironment() []string {
	ambientOnce.Do(func() {
		ambientEnv = os.Environ()
	})
	return ambientEnv
}

// Environment is the environment handed to a stdio server: Base entries in
// KEY=VALUE form with Overlay applied on top.
type Environment struct {
	Base    []string
	Overlay map[string]string
}

// Merge returns the combined KEY=VALUE list. Overlay keys replace matching
// Base keys; neither input is modified.
func (e Environment) Merge() []string {
	merged := make([]string, 0, len(e.Base)+len(e.Overlay))
	for _, kv := range e.Base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := e.Overlay[key]; overridden {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(e.Overlay))
	for k := range e.Overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+e.Overlay[k])
	}
	return merged
}
