package task

import "context"

// CanComplete reports whether every prerequisite of taskID is complete.
// Prerequisites without a task record count as incomplete. The check always
// reads current state; cycles leave every member permanently blocked.
func CanComplete(ctx context.Context, s *Store, taskID string) (Decision, error) {
	blocking, err := s.IncompletePrerequisites(ctx, taskID)
	if err != nil {
		return Decision{}, err
	}
	if len(blocking) == 0 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, Blocking: blocking}, nil
}
