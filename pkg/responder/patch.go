package responder

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/vango-dev/datastar/pkg/protocol"
)

// PatchOptions selects where and how markup is merged.
type PatchOptions struct {
	// Selector targets elements; empty matches by the markup's ids.
	Selector string

	// Mode defaults to the client's default (outer).
	Mode protocol.Mode

	UseViewTransition bool
}

// Renderer renders markup. templ components satisfy it.
type Renderer interface {
	Render(ctx context.Context, w io.Writer) error
}

// Patch emits one patch-elements event.
func (r *Responder) Patch(html string, opts PatchOptions) error {
	return r.emit(protocol.PatchElements(html, protocol.ElementsOptions{
		Selector:          opts.Selector,
		Mode:              opts.Mode,
		UseViewTransition: opts.UseViewTransition,
	}))
}

// Render renders c and patches the result.
func (r *Responder) Render(c Renderer, opts PatchOptions) error {
	if !r.reactive {
		return nil
	}
	var buf bytes.Buffer
	if err := c.Render(r.ctx, &buf); err != nil {
		return fmt.Errorf("responder: render: %w", err)
	}
	return r.Patch(buf.String(), opts)
}

func (r *Responder) patchMode(selector, html string, mode protocol.Mode) error {
	return r.Patch(html, PatchOptions{Selector: selector, Mode: mode})
}

// Outer morphs the matched elements into html.
func (r *Responder) Outer(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModeOuter)
}

// Inner morphs the children of the matched elements.
func (r *Responder) Inner(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModeInner)
}

// Replace swaps the matched elements without morphing.
func (r *Responder) Replace(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModeReplace)
}

// Append adds html as the last children.
func (r *Responder) Append(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModeAppend)
}

// Prepend adds html as the first children.
func (r *Responder) Prepend(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModePrepend)
}

// Before inserts html before the matched elements.
func (r *Responder) Before(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModeBefore)
}

// After inserts html after the matched elements.
func (r *Responder) After(selector, html string) error {
	return r.patchMode(selector, html, protocol.ModeAfter)
}

// Remove deletes the matched elements.
func (r *Responder) Remove(selector string) error {
	return r.patchMode(selector, "", protocol.ModeRemove)
}
