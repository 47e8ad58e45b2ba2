package chat

import (
	"context"

	"github.com/loqui/chat-service/internal/model"
)

// filterBlocked returns the subset of candidates who have not blocked
// actingUserID. The acting user is always retained if present: blocking is
// directed and users cannot block themselves.
//
// Conversation creation and add-user both filter through here; they differ
// only in what they do with an empty result.
func filterBlocked(_ context.Context, candidates []model.User, actingUserID string) []model.User {
	eligible := make([]model.User, 0, len(candidates))
	for _, u := range candidates {
		if u.ID == actingUserID || !u.HasBlocked(actingUserID) {
			eligible = append(eligible, u)
		}
	}
	return eligible
}
