package protocol

import (
	"errors"
	"fmt"
)

// Mode controls how patched elements are merged into the DOM.
type Mode string

const (
	ModeOuter   Mode = "outer"
	ModeInner   Mode = "inner"
	ModeReplace Mode = "replace"
	ModePrepend Mode = "prepend"
	ModeAppend  Mode = "append"
	ModeBefore  Mode = "before"
	ModeAfter   Mode = "after"
	ModeRemove  Mode = "remove"
)

// ErrInvalidMode is returned by ParseMode for unknown modes.
var ErrInvalidMode = errors.New("protocol: invalid patch mode")

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOuter, ModeInner, ModeReplace, ModePrepend, ModeAppend, ModeBefore, ModeAfter, ModeRemove:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Directive and payload prefixes used inside data lines.
const (
	SelectorKey          = "selector"
	ModeKey              = "mode"
	UseViewTransitionKey = "useViewTransition"
	ElementsKey          = "elements"
	OnlyIfMissingKey     = "onlyIfMissing"
	SignalsKey           = "signals"
)

// ElementsOptions are the directives of a patch-elements event.
// Zero values are omitted so the client default applies.
type ElementsOptions struct {
	Selector          string
	Mode              Mode
	UseViewTransition bool
}

// PatchElements builds a patch-elements event. Each line of html becomes
// its own "elements" data line. An empty html (for example a remove)
// produces directive lines only.
func PatchElements(html string, opts ElementsOptions) Event {
	lines := make([]string, 0, 4)
	if opts.Selector != "" {
		lines = append(lines, SelectorKey+" "+opts.Selector)
	}
	if opts.Mode != "" {
		lines = append(lines, ModeKey+" "+string(opts.Mode))
	}
	if opts.UseViewTransition {
		lines = append(lines, UseViewTransitionKey+" true")
	}
	if html != "" {
		for _, line := range splitLines(html) {
			lines = append(lines, ElementsKey+" "+line)
		}
	}
	return Event{Type: EventPatchElements, Lines: lines}
}

// PatchSignals builds a patch-signals event from already-encoded JSON.
func PatchSignals(json string, onlyIfMissing bool) Event {
	lines := make([]string, 0, 2)
	if onlyIfMissing {
		lines = append(lines, OnlyIfMissingKey+" true")
	}
	for _, line := range splitLines(json) {
		lines = append(lines, SignalsKey+" "+line)
	}
	return Event{Type: EventPatchSignals, Lines: lines}
}
