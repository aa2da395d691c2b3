package rsync

import (
	"slices"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Options holds rsync flags as key -> params. A key may repeat on the
// command line, e.g. --exclude=a --exclude=b is stored as
// {"exclude": ["a", "b"]}. A flag without a parameter has a single empty
// param.
type Options map[string][]string

// NewOptions returns an empty option set.
func NewOptions() Options {
	return make(Options)
}

// Enable turns on a flag. A param already present for the key is not added
// twice.
func (o Options) Enable(key, param string) {
	if slices.Contains(o[key], param) {
		return
	}
	o[key] = append(o[key], param)
}

// Disable removes the given params of key, or the whole key when no params
// are given. A key whose last param is removed disappears.
func (o Options) Disable(key string, params ...string) {
	current, ok := o[key]
	if !ok {
		return
	}
	if len(params) == 0 {
		delete(o, key)
		return
	}
	current = slices.DeleteFunc(current, func(p string) bool {
		return slices.Contains(params, p)
	})
	if len(current) == 0 {
		delete(o, key)
		return
	}
	o[key] = current
}

// Enabled reports whether key is set with any param.
func (o Options) Enabled(key string) bool {
	return len(o[key]) > 0
}

// Keys returns the option keys in render order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Args renders the options as separate shell words, unquoted.
func (o Options) Args() []string {
	var args []string
	for _, key := range o.Keys() {
		for _, param := range o[key] {
			args = append(args, render(key, param)...)
		}
	}
	return args
}

// String renders the options for a shell command line, quoting params that
// need it.
func (o Options) String() string {
	var words []string
	for _, key := range o.Keys() {
		for _, param := range o[key] {
			for _, w := range render(key, param) {
				words = append(words, shellquote.Join(w))
			}
		}
	}
	return strings.Join(words, " ")
}

func render(key, param string) []string {
	if len(key) == 1 {
		if param == "" {
			return []string{"-" + key}
		}
		return []string{"-" + key, param}
	}
	if param == "" {
		return []string{"--" + key}
	}
	return []string{"--" + key + "=" + param}
}

// ParseOption reads "key" or "key=param", with any leading dashes dropped.
func ParseOption(s string) (key, param string) {
	key, param, _ = strings.Cut(strings.TrimLeft(s, "-"), "=")
	return key, param
}
