// Package journal appends transcripts to daily Markdown documents.
//
// A document is created on the first transcript of a date with front
// matter and a navigation block derived only from the date, then every
// later transcript of that date is appended as
//
//	## HH:MM:SS - <filename>
//
//	<text>
//
// Appends to the same document are serialized and each write replaces the
// file atomically (temp file in the same directory, then rename).
package journal
