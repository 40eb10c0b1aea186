// Package logtail reads the tail of genrescope's own log file for the
// diagnostics pane.
//
// Read keeps a ring buffer of maxLines entries while scanning the file once,
// so memory stays O(maxLines) however large the log grows. A missing file is
// not an error; the log may simply not have been written yet.
//
// Parse splits lines produced by slog's text handler
// (time=... level=INFO msg="..." key=value) so the UI can colour the level
// and dim the attributes. Anything else is passed through as a bare message.
package logtail
