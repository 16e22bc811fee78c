// Package naming derives job identifiers and display names from incoming
// file names.
//
// Job ids become file stems under the inbox and output directories, so they
// are restricted to [A-Za-z0-9._-]. Ids derived from a file name are stable:
// processing the same file twice yields the same id, which is what makes
// re-runs overwrite instead of duplicate.
package naming
