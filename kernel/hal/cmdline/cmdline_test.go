package cmdline

import (
	"plugos/kernel"
	"plugos/kernel/mem"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	specs := []struct {
		input  string
		exp    map[string]string
		expErr *kernel.Error
	}{
		{"", map[string]string{}, nil},
		{"tick_us=20000 kbd=off", map[string]string{"tick_us": "20000", "kbd": "off"}, nil},
		{"  quiet   max_tasks=8 ", map[string]string{"quiet": "quiet", "max_tasks": "8"}, nil},
		{`log_prefix="[k] " stack_size=16KB`, map[string]string{"log_prefix": "[k] ", "stack_size": "16KB"}, nil},
		{"a=1 a=2", map[string]string{"a": "2"}, nil},
		{"key= other", map[string]string{"key": "", "other": "other"}, nil},
		{"=value", nil, errEmptyKey},
		{`log_prefix="unterminated`, nil, errBadSyntax},
	}

	for specIndex, spec := range specs {
		got, err := Parse(spec.input)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}
		if spec.expErr == nil && !reflect.DeepEqual(got, spec.exp) {
			t.Errorf("[spec %d] expected %v; got %v", specIndex, spec.exp, got)
		}
	}
}

func TestSet(t *testing.T) {
	defer Set("")

	if err := Set("kbd=on"); err != nil {
		t.Fatal(err)
	}
	if err := Set(`bad="`); err == nil {
		t.Fatal("expected a malformed command line to be rejected")
	}
	if got := Get()["kbd"]; got != "on" {
		t.Fatalf("expected a rejected command line to keep the previous one active; kbd = %q", got)
	}
}

func TestGetters(t *testing.T) {
	defer Set("")
	Set("tick_us=0x10 max_tasks=eight stack_size=32KB bad_size=lots kbd=Off verbose fast=yes debug=1 slow=maybe name=plugos")

	t.Run("string", func(t *testing.T) {
		if got := String("name", "x"); got != "plugos" {
			t.Errorf("expected plugos; got %q", got)
		}
		if got := String("missing", "x"); got != "x" {
			t.Errorf("expected the default; got %q", got)
		}
	})

	t.Run("uint", func(t *testing.T) {
		specs := []struct {
			key    string
			exp    uint64
			expErr *kernel.Error
		}{
			{"tick_us", 16, nil},
			{"missing", 7, nil},
			{"max_tasks", 7, errBadUint},
		}

		for specIndex, spec := range specs {
			got, err := Uint(spec.key, 7)
			if got != spec.exp || err != spec.expErr {
				t.Errorf("[spec %d] expected (%d, %v); got (%d, %v)", specIndex, spec.exp, spec.expErr, got, err)
			}
		}
	})

	t.Run("size", func(t *testing.T) {
		if got, err := Size("stack_size", mem.Kb); err != nil || got != 32*mem.Kb {
			t.Errorf("expected 32KB; got %s (%v)", got, err)
		}
		if got, err := Size("missing", mem.Kb); err != nil || got != mem.Kb {
			t.Errorf("expected the default; got %s (%v)", got, err)
		}
		if got, err := Size("bad_size", mem.Kb); err == nil || got != mem.Kb {
			t.Errorf("expected an error and the default; got %s (%v)", got, err)
		}
	})

	t.Run("bool", func(t *testing.T) {
		specs := []struct {
			key    string
			exp    bool
			expErr *kernel.Error
		}{
			{"kbd", false, nil},
			{"verbose", true, nil},
			{"fast", true, nil},
			{"debug", true, nil},
			{"missing", true, nil},
			{"slow", true, errBadBool},
		}

		for specIndex, spec := range specs {
			got, err := Bool(spec.key, true)
			if got != spec.exp || err != spec.expErr {
				t.Errorf("[spec %d] expected (%t, %v); got (%t, %v)", specIndex, spec.exp, spec.expErr, got, err)
			}
		}
	})
}
