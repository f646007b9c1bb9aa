// Package git is the built-in tool provider for local repository
// operations. Plans use it for branch management and for restoring files
// during rollback; it operates on working copies already on disk and never
// touches remotes.
package git
