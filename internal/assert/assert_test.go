//go:build debug

package assert

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
)

func TestInvariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ok        bool
		msg       string
		wantPanic string
	}{
		{name: "holds", ok: true, msg: "unused"},
		{name: "violated", ok: false, msg: "sequence went backwards", wantPanic: "INVARIANT VIOLATION: sequence went backwards"},
		{name: "empty message", ok: false, msg: "", wantPanic: "INVARIANT VIOLATION: "},
		{name: "multiline message", ok: false, msg: "device dev-1\nseq 3 <= 7", wantPanic: "INVARIANT VIOLATION: device dev-1\nseq 3 <= 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.wantPanic == "" {
				tassert.NotPanics(t, func() { Invariant(tt.ok, tt.msg) })
				return
			}
			tassert.PanicsWithValue(t, tt.wantPanic, func() { Invariant(tt.ok, tt.msg) })
		})
	}
}
