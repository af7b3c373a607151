package signals

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"count", KindRegular},
		{"userId_", KindLocked},
		{"_open", KindLocal},
		{"_both_", KindLocked},
		{"_", KindLocked},
		{"", KindRegular},
		{"a_b", KindRegular},
	}
	for _, tt := range tests {
		if got := KindOf(tt.name); got != tt.want {
			t.Errorf("KindOf(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKindProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("trailing underscore is always locked", prop.ForAll(
		func(s string) bool {
			return KindOf(s+"_") == KindLocked && KindOf("_"+s+"_") == KindLocked
		},
		gen.AnyString(),
	))

	properties.Property("leading underscore without trailing is local", prop.ForAll(
		func(s string) bool {
			if strings.HasSuffix(s, "_") {
				return true
			}
			return KindOf("_"+s) == KindLocal
		},
		gen.AnyString(),
	))

	properties.Property("kinds are mutually exclusive", prop.ForAll(
		func(s string) bool {
			n := 0
			if IsLocked(s) {
				n++
			}
			if IsLocal(s) {
				n++
			}
			if KindOf(s) == KindRegular {
				n++
			}
			return n == 1
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
