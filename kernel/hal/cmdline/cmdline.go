// Package cmdline parses the kernel command line. The command line is a list
// of shell-style words; each word is either a key=value pair or a bare flag
// which maps to itself.
package cmdline

import (
	"plugos/kernel"
	"plugos/kernel/mem"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

var (
	active = map[string]string{}

	errBadSyntax = &kernel.Error{Module: "cmdline", Message: "malformed command line"}
	errEmptyKey  = &kernel.Error{Module: "cmdline", Message: "empty key in command line"}
	errBadUint   = &kernel.Error{Module: "cmdline", Message: "value is not an unsigned integer"}
	errBadBool   = &kernel.Error{Module: "cmdline", Message: "value is not a boolean"}
)

// Parse splits line into its key/value pairs. Quoted values may contain
// spaces (log_prefix="[k] "). Later occurrences of a key override earlier
// ones.
func Parse(line string) (map[string]string, *kernel.Error) {
	words, err := shlex.Split(line)
	if err != nil {
		return nil, errBadSyntax
	}

	kv := make(map[string]string, len(words))
	for _, word := range words {
		key, value, found := strings.Cut(word, "=")
		if key == "" {
			return nil, errEmptyKey
		}
		if !found {
			value = key
		}
		kv[key] = value
	}
	return kv, nil
}

// Set parses line and makes it the active command line.
func Set(line string) *kernel.Error {
	kv, err := Parse(line)
	if err != nil {
		return err
	}
	active = kv
	return nil
}

// Get returns the key/value pairs of the active command line.
func Get() map[string]string {
	return active
}

// String returns the value of key or def if the key is not present.
func String(key, def string) string {
	if v, ok := active[key]; ok {
		return v
	}
	return def
}

// Uint returns the value of key parsed as an unsigned integer.
func Uint(key string, def uint64) (uint64, *kernel.Error) {
	v, ok := active[key]
	if !ok {
		return def, nil
	}

	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return def, errBadUint
	}
	return n, nil
}

// Size returns the value of key parsed as a byte size (16KB, 1MB, 4096B).
func Size(key string, def mem.Size) (mem.Size, *kernel.Error) {
	v, ok := active[key]
	if !ok {
		return def, nil
	}

	size, err := mem.ParseSize(v)
	if err != nil {
		return def, err
	}
	return size, nil
}

// Bool returns the value of key parsed as a boolean. Besides the usual
// strconv forms on/off and yes/no are accepted; a bare flag is true.
func Bool(key string, def bool) (bool, *kernel.Error) {
	v, ok := active[key]
	if !ok {
		return def, nil
	}

	if v == key {
		return true, nil
	}

	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, errBadBool
	}
	return b, nil
}
