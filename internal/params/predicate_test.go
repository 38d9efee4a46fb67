package params

import (
	"testing"

	"github.com/bitswalk/releng/internal/machinespec"
)

func TestPredicateEval(t *testing.T) {
	scope := Scope{
		Bundle:  BundleToolchain,
		Machine: machinespec.Spec{OS: "windows", Arch: "x86_64", Config: "mingw"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`machine.os == windows`, true},
		{`machine.os == linux`, false},
		{`machine.os != linux`, true},
		{`bundle == toolchain`, true},
		{`bundle == sdk`, false},
		{`machine.os in [windows, macos]`, true},
		{`machine.os in [linux, macos]`, false},
		{`not machine.os == linux`, true},
		{`machine.os == windows and bundle == toolchain`, true},
		{`machine.os == linux or bundle == toolchain`, true},
		{`machine.os == linux and bundle == toolchain`, false},
		{`(machine.os == linux or bundle == toolchain) and not machine.is_apple == true`, true},
		{`machine.toolchain_is_msvc == false`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := ParsePredicate(tt.expr)
			if err != nil {
				t.Fatalf("ParsePredicate(%q): %v", tt.expr, err)
			}
			got := pred.Eval(scope)
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestPredicateNilIsAlwaysTrue(t *testing.T) {
	var p *Predicate
	if !p.Eval(Scope{}) {
		t.Error("nil predicate should evaluate to true (absent `when` clause)")
	}
}
