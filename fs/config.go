package fs

import "iter"

// Config is a read-only view of a model configuration tree keyed by the
// names used in the checkpoint's config.json.
type Config interface {
	Architecture() string
	String(string, ...string) string
	Int(string, ...int) int
	Strings(string, ...[]string) []string

	Len() int
	Keys() iter.Seq[string]
	Value(key string) any
}
