package exitcodes

// Exit codes for treesweep
// These codes form the operational contract with scripts and operators
const (
	Success         = 0 // Tree removed; tolerated directory warnings still exit 0
	DeletionAborted = 1 // A fatal error stopped the sweep part way
	InvalidConfig   = 2 // Configuration file or command line invalid
	SafetyViolation = 3 // Safety validator refused the target
	RuntimeError    = 4 // Runtime error outside the sweep (database, lock I/O)
	Locked          = 5 // Another run holds the lock
)
