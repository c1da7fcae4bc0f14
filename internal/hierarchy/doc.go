// Package hierarchy turns the flat, code-sorted account list into the
// MainGroup > SubGroup > DetailAccount tree served to clients.
//
// Build is pure: it reads its input, allocates a fresh tree and touches no
// shared state, so the read path may call it concurrently with a running sync.
package hierarchy
