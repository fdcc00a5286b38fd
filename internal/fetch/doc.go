// Package fetch downloads a single URL into a destination directory.
//
// The destination file name is the last path segment of the final,
// post-redirect URL. A file of that name already present in the directory is
// treated as a cache hit: no body is transferred and the existing path is
// returned. Failures never surface as Go errors; they are reported through the
// Observer and encoded in the returned Result, whose Replacement falls back to
// the remote URL so callers can keep rewriting.
package fetch
