package annotation

import "github.com/leapstack-labs/querygen/pkg/core"

// nullabilityKeys are the two spellings of one setting. A layer that
// declares either replaces both in the layers beneath it.
var nullabilityKeys = map[string]string{
	KeyNotNull:  KeyNullable,
	KeyNullable: KeyNotNull,
}

// Merge layers override on top of base key by key. Neither input is
// modified; the result is always a fresh map.
func Merge(base, override core.AnnotationMap) core.AnnotationMap {
	out := make(core.AnnotationMap, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k := range override {
		if opposite, ok := nullabilityKeys[k]; ok {
			delete(out, opposite)
		}
	}
	for k, v := range override {
		out[k] = v
	}
	return out.Clone()
}

// MergeAll folds layers left to right, later layers winning.
func MergeAll(layers ...core.AnnotationMap) core.AnnotationMap {
	out := core.AnnotationMap{}
	for _, l := range layers {
		out = Merge(out, l)
	}
	return out
}
