package session

import "errors"

var (
	// ErrIncompleteContext means subject, class, or room is missing.
	ErrIncompleteContext = errors.New("subject, class and room are required")
	// ErrWrongState rejects a transition the current state does not allow.
	ErrWrongState = errors.New("operation not allowed in current state")
	// ErrMethodChosen rejects a second method choice after population began.
	ErrMethodChosen = errors.New("capture method already chosen")
	// ErrUnknownMethod rejects a method outside camera/self-checkin/manual.
	ErrUnknownMethod = errors.New("unknown capture method")
	// ErrNotPopulating rejects roster events outside RosterPopulating.
	ErrNotPopulating = errors.New("roster is not populating")
	// ErrNotFinalized rejects finalize-only operations before finalize.
	ErrNotFinalized = errors.New("session not finalized")
	// ErrRosterReadOnly rejects post-finalize mutation for automatic methods.
	ErrRosterReadOnly = errors.New("finalized roster is read-only for this method")
	// ErrDuplicateStudent rejects a second roster event for the same student.
	ErrDuplicateStudent = errors.New("student already in roster")
	// ErrUnknownStudent rejects a toggle for a student not in the roster.
	ErrUnknownStudent = errors.New("student not in roster")
	// ErrEmptyStudentID rejects a roster event without a student id.
	ErrEmptyStudentID = errors.New("student id required")
	// ErrSessionNotFound means no live machine exists for the reference.
	ErrSessionNotFound = errors.New("attendance session not found")
	// ErrAlreadySubmitted protects a submitted record from being superseded.
	ErrAlreadySubmitted = errors.New("attendance already submitted for this class today")
	// ErrCodeExpired means the self-check-in code is unknown or expired.
	ErrCodeExpired = errors.New("check-in code expired")
)
