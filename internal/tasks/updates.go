package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	PurgeDocuments Phase = iota
	SweepCache
	RevokeTokens
	DeleteSessions
)

func (p Phase) String() string {
	switch p {
	case PurgeDocuments:
		return "purge_documents"
	case SweepCache:
		return "sweep_cache"
	case RevokeTokens:
		return "revoke_tokens"
	case DeleteSessions:
		return "delete_sessions"
	default:
		return ""
	}
}

func purgeDocumentsUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PurgeDocuments,
		Step:    step,
		Total:   total,
		Message: "Purging expired documents...",
	}
}

func purgedDocumentsUpdate(step, total, removed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PurgeDocuments,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Removed %d expired documents", removed),
		Data:    removed,
	}
}

func sweepCacheUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SweepCache,
		Step:    step,
		Total:   total,
		Message: "Sweeping expired cache entries...",
	}
}

func sweptCacheUpdate(step, total, removed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SweepCache,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Removed %d expired cache entries", removed),
		Data:    removed,
	}
}

func revokeTokensUpdate(step, total int, userID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RevokeTokens,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Revoking tokens for %s...", userID),
	}
}

func deleteSessionsUpdate(step, total int, userID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DeleteSessions,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Deleting playback sessions for %s...", userID),
	}
}

func deletedSessionsUpdate(step, total, removed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DeleteSessions,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Deleted %d session snapshots", removed),
		Data:    removed,
	}
}
