package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// Manager owns the live machines: exactly one per session ref, at most one
// non-abandoned session per (class, date). All machine access is serialized
// through the manager's lock, matching the single event loop the workflow
// assumes.
type Manager struct {
	mu          sync.Mutex
	store       Store
	codes       *CodeStore
	machines    map[string]*Machine
	byClassDate map[string]string
	now         func() time.Time
}

// NewManager creates a manager. codes may be nil when self check-in is not
// configured.
func NewManager(store Store, codes *CodeStore) *Manager {
	return &Manager{
		store:       store,
		codes:       codes,
		machines:    make(map[string]*Machine),
		byClassDate: make(map[string]string),
		now:         time.Now,
	}
}

func classDateKey(classID, date string) string { return classID + "|" + date }

// Initiate opens a session for (subject, class, room) dated now. When the
// class already has an open or submitted session today the returned machine
// is in StateClassContextRejected and the caller must surface the
// inspect-or-override choice; nothing is auto-picked.
func (mgr *Manager) Initiate(ctx context.Context, openedBy, subjectID, classID, roomID string) (Snapshot, error) {
	class, err := NewClassContext(subjectID, classID, roomID, mgr.now())
	if err != nil {
		return Snapshot{}, err
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m := NewMachine(uuid.NewString(), class)

	existingRef, ok := mgr.byClassDate[classDateKey(classID, class.Date)]
	if !ok {
		var serr error
		existingRef, _, serr = mgr.store.Active(ctx, classID, class.Date)
		if serr != nil {
			return Snapshot{}, serr
		}
	}

	if existingRef != "" {
		_ = m.ContextRejected(existingRef)
		mgr.machines[m.Ref()] = m
		metrics.DuplicatesRejected.Inc()
		return m.Snapshot(), nil
	}

	if err := mgr.store.Insert(ctx, Row{
		Ref:       m.Ref(),
		SubjectID: subjectID,
		ClassID:   classID,
		RoomID:    roomID,
		Date:      class.Date,
		Time:      class.Time,
		Status:    StatusOpen,
		OpenedBy:  openedBy,
		CreatedAt: mgr.now(),
	}); err != nil {
		return Snapshot{}, err
	}

	_ = m.ContextAccepted()
	mgr.machines[m.Ref()] = m
	mgr.byClassDate[classDateKey(classID, class.Date)] = m.Ref()
	metrics.SessionsOpened.Inc()
	return m.Snapshot(), nil
}

// Override supersedes the unsubmitted session that caused rejection and
// re-opens the rejected machine. A submitted record is never overwritten.
func (mgr *Manager) Override(ctx context.Context, ref string) (Snapshot, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	if m.State() != StateClassContextRejected {
		return Snapshot{}, ErrWrongState
	}

	existing := m.ExistingRef()
	status, err := mgr.store.Status(ctx, existing)
	if err != nil {
		return Snapshot{}, err
	}
	if status == StatusSubmitted {
		return Snapshot{}, ErrAlreadySubmitted
	}

	if err := mgr.store.SetStatus(ctx, existing, StatusSuperseded); err != nil {
		return Snapshot{}, err
	}
	mgr.dropLocked(existing)

	_ = m.Reopen()
	class := m.Class()
	if err := mgr.store.Insert(ctx, Row{
		Ref:       m.Ref(),
		SubjectID: class.SubjectID,
		ClassID:   class.ClassID,
		RoomID:    class.RoomID,
		Date:      class.Date,
		Time:      class.Time,
		Status:    StatusOpen,
		CreatedAt: mgr.now(),
	}); err != nil {
		_ = m.ContextRejected(existing)
		return Snapshot{}, err
	}

	_ = m.ContextAccepted()
	mgr.byClassDate[classDateKey(class.ClassID, class.Date)] = m.Ref()
	metrics.SessionsOpened.Inc()
	return m.Snapshot(), nil
}

// ChooseMethod makes the one-shot method choice. Manual capture loads the
// full class roster (present by default) and finalizes immediately; self
// check-in returns the shareable code students submit against.
func (mgr *Manager) ChooseMethod(ctx context.Context, ref string, method Method) (Snapshot, string, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return Snapshot{}, "", ErrSessionNotFound
	}
	if err := m.ChooseMethod(method); err != nil {
		return Snapshot{}, "", err
	}
	if err := mgr.store.SetMethod(ctx, ref, method); err != nil {
		log.Printf("session %s: persist method failed: %v", ref, err)
	}

	switch method {
	case MethodManual:
		roster, err := mgr.store.ClassRoster(ctx, m.Class().ClassID)
		if err != nil {
			_ = m.AbortCapture()
			metrics.CaptureAborts.Inc()
			return Snapshot{}, "", err
		}
		for _, rec := range roster {
			rec.Presence = Present
			if aerr := m.Apply(rec); aerr != nil {
				log.Printf("session %s: roster load skipped %s: %v", ref, rec.StudentID, aerr)
				continue
			}
			metrics.RosterEvents.WithLabelValues(string(MethodManual)).Inc()
		}
		_ = m.Complete()
		metrics.SessionsFinalized.Inc()
		return m.Snapshot(), "", nil

	case MethodSelfCheckin:
		if mgr.codes == nil {
			_ = m.AbortCapture()
			metrics.CaptureAborts.Inc()
			return Snapshot{}, "", ErrCodeExpired
		}
		code, err := mgr.codes.Issue(ctx, ref)
		if err != nil {
			_ = m.AbortCapture()
			metrics.CaptureAborts.Inc()
			return Snapshot{}, "", err
		}
		return m.Snapshot(), code, nil
	}

	return m.Snapshot(), "", nil
}

// ApplyRecords feeds roster events to a populating session in arrival order.
// Duplicate students are dropped, never appended.
func (mgr *Manager) ApplyRecords(ref string, records []Record) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return ErrSessionNotFound
	}
	for _, rec := range records {
		switch err := m.Apply(rec); err {
		case nil:
			metrics.RosterEvents.WithLabelValues(string(m.Method())).Inc()
		case ErrDuplicateStudent:
			// Repeated recognition of the same student is expected traffic.
		default:
			return err
		}
	}
	return nil
}

// CheckIn resolves a self-check-in code and applies the student's record.
func (mgr *Manager) CheckIn(ctx context.Context, code string, rec Record) (string, error) {
	if mgr.codes == nil {
		return "", ErrCodeExpired
	}
	ref, err := mgr.codes.Resolve(ctx, code)
	if err != nil {
		return "", err
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return "", ErrSessionNotFound
	}
	if m.Method() != MethodSelfCheckin {
		return "", ErrWrongState
	}
	switch err := m.Apply(rec); err {
	case nil:
		metrics.RosterEvents.WithLabelValues(string(MethodSelfCheckin)).Inc()
	case ErrDuplicateStudent:
		// A second check-in from the same student is a no-op.
	default:
		return "", err
	}
	return ref, nil
}

// Complete is the capture source's completion signal; it finalizes the
// roster exactly once.
func (mgr *Manager) Complete(ctx context.Context, ref string) (Snapshot, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	if err := m.Complete(); err != nil {
		return Snapshot{}, err
	}
	if mgr.codes != nil && m.Method() == MethodSelfCheckin {
		mgr.codes.Revoke(ctx, ref)
	}
	metrics.SessionsFinalized.Inc()
	return m.Snapshot(), nil
}

// Toggle flips one student's presence on a finalized manual roster.
func (mgr *Manager) Toggle(ref, studentID string) (Snapshot, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	if _, err := m.Toggle(studentID); err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// AbortCapture handles a capture-source failure: the session returns to
// method selection and the partial roster is discarded.
func (mgr *Manager) AbortCapture(ctx context.Context, ref string) (Snapshot, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	if err := m.AbortCapture(); err != nil {
		return Snapshot{}, err
	}
	if err := mgr.store.SetMethod(ctx, ref, ""); err != nil {
		log.Printf("session %s: clear method failed: %v", ref, err)
	}
	metrics.CaptureAborts.Inc()
	return m.Snapshot(), nil
}

// Submit persists the finalized roster. Failure leaves the machine finalized
// so the identical submission can be retried; success discards it.
func (mgr *Manager) Submit(ctx context.Context, ref string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return ErrSessionNotFound
	}
	if m.State() != StateFinalized {
		return ErrNotFinalized
	}
	if err := mgr.store.Submit(ctx, ref, m.Roster(), mgr.now()); err != nil {
		return err
	}
	mgr.dropLocked(ref)
	metrics.SessionsSubmitted.Inc()
	return nil
}

// Abandon discards a live session; no partial roster is persisted.
func (mgr *Manager) Abandon(ctx context.Context, ref string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return ErrSessionNotFound
	}
	if mgr.codes != nil && m.Method() == MethodSelfCheckin {
		mgr.codes.Revoke(ctx, ref)
	}
	mgr.dropLocked(ref)
	if err := mgr.store.SetStatus(ctx, ref, StatusAbandoned); err != nil {
		log.Printf("session %s: mark abandoned failed: %v", ref, err)
	}
	return nil
}

// Snapshot returns the live machine's current view.
func (mgr *Manager) Snapshot(ref string) (Snapshot, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	m, ok := mgr.machines[ref]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return m.Snapshot(), nil
}

// Existing is the inspect path for a rejected context: the stored session
// for (class, date) with any submitted roster, read-only.
func (mgr *Manager) Existing(ctx context.Context, classID, date string) (Row, []Record, error) {
	ref, _, err := mgr.store.Active(ctx, classID, date)
	if err != nil {
		return Row{}, nil, err
	}
	if ref == "" {
		return Row{}, nil, ErrSessionNotFound
	}
	return mgr.store.Find(ctx, ref)
}

// RunRecognizedPump consumes recognized-student events from the queue and
// routes them to the owning machine. Blocks until ctx is canceled.
func (mgr *Manager) RunRecognizedPump(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != queue.TypeRecognized {
			continue
		}
		var payload queue.RecognizedPayload
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			log.Printf("recognized event decode failed: %v", err)
			continue
		}
		records := make([]Record, 0, len(payload.Students))
		for _, s := range payload.Students {
			records = append(records, Record{
				StudentID:   s.StudentID,
				RollNumber:  s.RollNumber,
				DisplayName: s.Name,
				Presence:    Present,
			})
		}
		if err := mgr.ApplyRecords(payload.SessionRef, records); err != nil {
			log.Printf("session %s: recognized events dropped: %v", payload.SessionRef, err)
		}
	}
	return nil
}

// dropLocked removes a machine and its class-date claim. Caller holds mu.
func (mgr *Manager) dropLocked(ref string) {
	m, ok := mgr.machines[ref]
	if !ok {
		return
	}
	delete(mgr.machines, ref)
	key := classDateKey(m.Class().ClassID, m.Class().Date)
	if mgr.byClassDate[key] == ref {
		delete(mgr.byClassDate, key)
	}
}
