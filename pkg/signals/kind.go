package signals

import "strings"

// Kind classifies a signal by its name.
type Kind uint8

const (
	KindRegular Kind = iota
	KindLocked
	KindLocal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLocked:
		return "locked"
	case KindLocal:
		return "local"
	default:
		return "regular"
	}
}

// KindOf classifies name. The trailing underscore is checked first, so
// "_both_" is locked.
func KindOf(name string) Kind {
	switch {
	case strings.HasSuffix(name, "_"):
		return KindLocked
	case strings.HasPrefix(name, "_"):
		return KindLocal
	default:
		return KindRegular
	}
}

// IsLocked reports whether name is a locked signal.
func IsLocked(name string) bool { return KindOf(name) == KindLocked }

// IsLocal reports whether name is a client-only signal.
func IsLocal(name string) bool { return KindOf(name) == KindLocal }
