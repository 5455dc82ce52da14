// Package report renders fingerprint records and comparisons.
//
// Three formats are available:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter: structured JSON that ReadRecord can load back
//   - MarkdownWriter: tables and a probe status chart for sharing
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
