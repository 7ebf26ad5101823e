package poller

import "time"

// projectSuccess replaces the snapshot wholesale, clears the error and
// recomputes activity from the termination rule.
func projectSuccess(prev State, snap Snapshot, now time.Time) State {
	next := prev
	next.Snapshot = snap.Clone()
	if next.Snapshot == nil {
		next.Snapshot = Snapshot{}
	}
	next.Err = nil
	next.Polls = prev.Polls + 1
	next.UpdatedAt = now

	if snap.Finished() {
		next.Phase = PhaseDone
		next.Active = false
	} else {
		next.Phase = PhasePolling
		next.Active = true
	}
	return next
}

// projectFailure keeps the last good snapshot and stops the session.
func projectFailure(prev State, err error, now time.Time) State {
	next := prev
	next.Err = err
	next.Active = false
	next.Phase = PhaseErrored
	next.Polls = prev.Polls + 1
	next.UpdatedAt = now
	return next
}

// idleState is what observers see when no key is set.
func idleState(now time.Time) State {
	return State{
		Phase:     PhaseIdle,
		Snapshot:  Snapshot{},
		UpdatedAt: now,
	}
}

// waitingState is the state of a freshly armed session.
func waitingState(sessionID string, key Key, now time.Time) State {
	return State{
		SessionID: sessionID,
		Key:       key.String(),
		Phase:     PhaseWaiting,
		Snapshot:  Snapshot{},
		Active:    true,
		UpdatedAt: now,
	}
}
