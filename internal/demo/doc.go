// Package demo is a small application exercising the responder: a
// counter guarded by a locked signal, a validated contact form, live
// search with URL updates, a streamed clock and diagnostics.
package demo
