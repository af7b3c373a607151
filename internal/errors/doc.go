// Package errors provides coded, categorised diagnostics for the Datastar
// adapter.
//
// Every failure the adapter reports maps to a code such as "DS001" with a
// short message, a longer explanation and a hint. The same error renders
// for a terminal (Format, PrintError), for logs (FormatCompact) and as an
// HTML page (FormatHTML) that replaces the browser document when a stream
// fails.
//
// # Usage
//
//	err := errors.From(signalsErr)
//	fmt.Println(err.Format())
//	// ERROR DS001: Locked signal tampered
//	//
//	//   A locked signal submitted by the client differs from the value the
//	//   server stored for it.
//	//
//	//   Hint: Only change locked signals on the server.
package errors
