package diag

import (
	"fmt"
	"testing"
)

func TestErrorRendering(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{Errorf(UnboundVariable, "/2/value", "identifier %q has no binding", "x"), `unbound-variable at /2/value: identifier "x" has no binding`},
		{Errorf(MalformedProgram, "", "program must be an array"), "malformed-program at /: program must be an array"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("compile: %w", Errorf(ArityMismatch, "/0", "bad"))
	if k := KindOf(err); k != ArityMismatch {
		t.Fatalf("KindOf = %q, want %q", k, ArityMismatch)
	}
	if k := KindOf(fmt.Errorf("plain")); k != "" {
		t.Fatalf("KindOf(plain) = %q, want empty", k)
	}
}
