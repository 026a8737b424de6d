// Package call wraps one outbound bot API invocation in a Future that
// reissues the invocation on retryable failures and resolves exactly once.
//
// Outcome rules for a response:
//
//	2xx          decode the body, or fail with ErrMissingBody
//	409          terminal
//	429          wait the advised retry-after, then reissue
//	other 4xx    terminal
//	other        terminal when strict, reissued otherwise
//
// A transport failure (no response) is terminal when not strict and when its
// reason is a timeout, and reissued otherwise. PolicySymmetric replaces that
// rule with one where strict never reissues and non-strict reissues both
// server and non-timeout transport failures.
package call
