package process

import "github.com/pmorelli/braindump/internal/models"

// allowedTransitions is the status transition table for a process.
//
//	incomplete  -> processing (worker claims the extraction job)
//	incomplete  -> processed | error (synchronous extraction path)
//	processing  -> processed | error
//	processed   -> accepted (all items approved) | processed (recompute no-op)
//	accepted, error: terminal
var allowedTransitions = map[models.ProcessStatus][]models.ProcessStatus{
	models.ProcessStatusIncomplete: {
		models.ProcessStatusProcessing,
		models.ProcessStatusProcessed,
		models.ProcessStatusError,
	},
	models.ProcessStatusProcessing: {
		models.ProcessStatusProcessed,
		models.ProcessStatusError,
	},
	models.ProcessStatusProcessed: {
		models.ProcessStatusProcessed,
		models.ProcessStatusAccepted,
	},
	models.ProcessStatusAccepted: {},
	models.ProcessStatusError:    {},
}

// CanTransition reports whether moving a process from one status to another
// is permitted by the lifecycle table.
func CanTransition(from, to models.ProcessStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
