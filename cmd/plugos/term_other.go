//go:build !linux

package main

// makeRaw is a no-op outside Linux; keys arrive once a line is entered.
func makeRaw(fd int) (func() error, error) {
	return func() error { return nil }, nil
}
