// Package exitcodes defines the standard exit codes used by op-narrator.
package exitcodes

// Exit code constants used by op-narrator
//
// * Success (0): every run of the session passed
// * TestFailure (1): at least one run failed or was aborted
// * RuntimeErr (2): configuration errors, unavailable resources, interrupted sessions
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
