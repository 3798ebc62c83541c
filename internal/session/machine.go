// Package session implements the attendance-session workflow: one state
// machine per class meeting, from class-context validation through roster
// population to the finalized, submittable record.
package session

import (
	"time"
)

// State is the machine's position in the attendance workflow.
type State int

const (
	// StateAwaitingClassContext is the initial state; the class meeting
	// context has been proposed but not yet accepted by initiation.
	StateAwaitingClassContext State = iota
	// StateClassContextRejected means an attendance session already exists
	// for this class today. The actor must pick: inspect it or override.
	StateClassContextRejected
	// StateMethodSelection waits for the one-shot capture method choice.
	StateMethodSelection
	// StateRosterPopulating accumulates roster events from the capture
	// source in arrival order.
	StateRosterPopulating
	// StateFinalized holds the fixed roster. Terminal except for manual
	// presence toggles and submission.
	StateFinalized
)

// String names the state for logs and API snapshots.
func (s State) String() string {
	switch s {
	case StateAwaitingClassContext:
		return "awaiting-class-context"
	case StateClassContextRejected:
		return "class-context-rejected"
	case StateMethodSelection:
		return "method-selection"
	case StateRosterPopulating:
		return "roster-populating"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Method is the capture mechanism, chosen exactly once per session.
type Method string

const (
	MethodCamera      Method = "camera"
	MethodSelfCheckin Method = "self-checkin"
	MethodManual      Method = "manual"
)

func validMethod(m Method) bool {
	switch m {
	case MethodCamera, MethodSelfCheckin, MethodManual:
		return true
	}
	return false
}

// Presence is a per-student attendance mark.
type Presence string

const (
	Present Presence = "present"
	Absent  Presence = "absent"
)

// Record is one student's entry in the roster.
type Record struct {
	StudentID   string   `json:"student_id"`
	RollNumber  string   `json:"roll_number"`
	DisplayName string   `json:"display_name"`
	Presence    Presence `json:"presence"`
}

// ClassContext identifies one attendance-taking occasion. Date and Time come
// from the wall clock at open, never from the actor.
type ClassContext struct {
	SubjectID string `json:"subject_id"`
	ClassID   string `json:"class_id"`
	RoomID    string `json:"room_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

// NewClassContext validates the mandatory foreign keys and stamps the
// scheduled date and time from now.
func NewClassContext(subjectID, classID, roomID string, now time.Time) (ClassContext, error) {
	if subjectID == "" || classID == "" || roomID == "" {
		return ClassContext{}, ErrIncompleteContext
	}
	return ClassContext{
		SubjectID: subjectID,
		ClassID:   classID,
		RoomID:    roomID,
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04"),
	}, nil
}

// Machine governs one attendance session. It is not safe for concurrent use;
// the Manager serializes all access.
type Machine struct {
	ref         string
	class       ClassContext
	state       State
	method      Method
	roster      []Record
	index       map[string]int
	existingRef string
}

// NewMachine creates a machine in StateAwaitingClassContext for one class
// meeting context.
func NewMachine(ref string, class ClassContext) *Machine {
	return &Machine{
		ref:   ref,
		class: class,
		state: StateAwaitingClassContext,
		index: make(map[string]int),
	}
}

// Ref returns the session reference.
func (m *Machine) Ref() string { return m.ref }

// Class returns the class meeting context.
func (m *Machine) Class() ClassContext { return m.class }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Method returns the chosen capture method, empty until chosen.
func (m *Machine) Method() Method { return m.method }

// ExistingRef returns the session that caused rejection, set only in
// StateClassContextRejected.
func (m *Machine) ExistingRef() string { return m.existingRef }

// ContextAccepted records a successful initiation round trip.
func (m *Machine) ContextAccepted() error {
	if m.state != StateAwaitingClassContext {
		return ErrWrongState
	}
	m.state = StateMethodSelection
	return nil
}

// ContextRejected records that initiation found an existing session for this
// (class, date). The machine holds until the actor picks inspect or override.
func (m *Machine) ContextRejected(existingRef string) error {
	if m.state != StateAwaitingClassContext {
		return ErrWrongState
	}
	m.state = StateClassContextRejected
	m.existingRef = existingRef
	return nil
}

// Reopen returns a rejected machine to StateAwaitingClassContext so the
// override path can re-run initiation.
func (m *Machine) Reopen() error {
	if m.state != StateClassContextRejected {
		return ErrWrongState
	}
	m.state = StateAwaitingClassContext
	m.existingRef = ""
	return nil
}

// ChooseMethod makes the one-shot capture method choice and begins roster
// population. Once population starts the method can never change without a
// full reset.
func (m *Machine) ChooseMethod(method Method) error {
	if m.state == StateRosterPopulating || m.state == StateFinalized {
		return ErrMethodChosen
	}
	if m.state != StateMethodSelection {
		return ErrWrongState
	}
	if !validMethod(method) {
		return ErrUnknownMethod
	}
	m.method = method
	m.state = StateRosterPopulating
	return nil
}

// Apply appends one roster event in arrival order. Duplicate student ids are
// rejected, never appended. A record without a presence mark is present.
func (m *Machine) Apply(rec Record) error {
	if m.state != StateRosterPopulating {
		return ErrNotPopulating
	}
	if rec.StudentID == "" {
		return ErrEmptyStudentID
	}
	if _, seen := m.index[rec.StudentID]; seen {
		return ErrDuplicateStudent
	}
	if rec.Presence == "" {
		rec.Presence = Present
	}
	m.index[rec.StudentID] = len(m.roster)
	m.roster = append(m.roster, rec)
	return nil
}

// Complete is the capture source's "no more entries" signal. It fires the
// transition to StateFinalized exactly once.
func (m *Machine) Complete() error {
	if m.state != StateRosterPopulating {
		return ErrNotPopulating
	}
	m.state = StateFinalized
	return nil
}

// Toggle flips one student's presence. Allowed only for the manual method
// after finalize; camera and self-check-in rosters are read-only once
// finalized. State does not change.
func (m *Machine) Toggle(studentID string) (Presence, error) {
	if m.state != StateFinalized {
		return "", ErrNotFinalized
	}
	if m.method != MethodManual {
		return "", ErrRosterReadOnly
	}
	i, ok := m.index[studentID]
	if !ok {
		return "", ErrUnknownStudent
	}
	if m.roster[i].Presence == Present {
		m.roster[i].Presence = Absent
	} else {
		m.roster[i].Presence = Present
	}
	return m.roster[i].Presence, nil
}

// AbortCapture handles a capture-source failure: back to method selection
// with the partial roster for this attempt discarded.
func (m *Machine) AbortCapture() error {
	if m.state != StateRosterPopulating {
		return ErrNotPopulating
	}
	m.state = StateMethodSelection
	m.method = ""
	m.roster = nil
	m.index = make(map[string]int)
	return nil
}

// Roster returns a copy of the roster in arrival order.
func (m *Machine) Roster() []Record {
	out := make([]Record, len(m.roster))
	copy(out, m.roster)
	return out
}

// PresentCount derives the present total from the roster.
func (m *Machine) PresentCount() int {
	n := 0
	for _, rec := range m.roster {
		if rec.Presence == Present {
			n++
		}
	}
	return n
}

// AbsentCount derives the absent total from the roster.
func (m *Machine) AbsentCount() int {
	return len(m.roster) - m.PresentCount()
}

// Snapshot is the read view handed to API callers.
type Snapshot struct {
	Ref          string       `json:"ref"`
	Class        ClassContext `json:"class"`
	State        string       `json:"state"`
	Method       Method       `json:"method,omitempty"`
	ExistingRef  string       `json:"existing_ref,omitempty"`
	Roster       []Record     `json:"roster"`
	PresentCount int          `json:"present_count"`
	AbsentCount  int          `json:"absent_count"`
}

// Snapshot captures the machine's current view.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Ref:          m.ref,
		Class:        m.class,
		State:        m.state.String(),
		Method:       m.method,
		ExistingRef:  m.existingRef,
		Roster:       m.Roster(),
		PresentCount: m.PresentCount(),
		AbsentCount:  m.AbsentCount(),
	}
}
