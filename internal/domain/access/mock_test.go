package access

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockRepo is an in-memory Repository with the same compare-and-set and
// uniqueness semantics as the Postgres implementation.
type mockRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*AccessRecord

	failCreate error
	failTouch  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*AccessRecord)}
}

func (m *mockRepo) clone(rec *AccessRecord) *AccessRecord {
	cp := *rec
	return &cp
}

func (m *mockRepo) Create(_ context.Context, rec *AccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	for _, r := range m.records {
		if r.PatientID == rec.PatientID && r.Live() &&
			strings.EqualFold(r.MemberEmail, rec.MemberEmail) {
			return ErrDuplicateRelationship
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	m.records[rec.ID] = m.clone(rec)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return m.clone(rec), nil
}

func (m *mockRepo) GetByToken(_ context.Context, token string) (*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.InvitationToken != nil && *rec.InvitationToken == token {
			return m.clone(rec), nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *mockRepo) FindLiveByPatientAndEmail(_ context.Context, patientID uuid.UUID, email string) (*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.PatientID == patientID && rec.Live() && strings.EqualFold(rec.MemberEmail, email) {
			return m.clone(rec), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *mockRepo) FindByPatientAndMember(_ context.Context, patientID, memberID uuid.UUID) (*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out *AccessRecord
	for _, rec := range m.records {
		if rec.PatientID != patientID || rec.MemberID == nil || *rec.MemberID != memberID {
			continue
		}
		if rec.Status != StatusActive && rec.Status != StatusSuspended {
			continue
		}
		if out == nil || rec.CreatedAt.After(out.CreatedAt) {
			out = rec
		}
	}
	if out == nil {
		return nil, ErrRecordNotFound
	}
	return m.clone(out), nil
}

func (m *mockRepo) listWhere(match func(*AccessRecord) bool) []*AccessRecord {
	var out []*AccessRecord
	for _, rec := range m.records {
		if match(rec) {
			out = append(out, m.clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) ListActiveByPatient(_ context.Context, patientID uuid.UUID) ([]*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listWhere(func(r *AccessRecord) bool {
		return r.PatientID == patientID && r.Status == StatusActive
	}), nil
}

func (m *mockRepo) ListActiveByMember(_ context.Context, memberID uuid.UUID) ([]*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listWhere(func(r *AccessRecord) bool {
		return r.MemberID != nil && *r.MemberID == memberID && r.Status == StatusActive
	}), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.listWhere(func(r *AccessRecord) bool { return r.PatientID == patientID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) Update(_ context.Context, rec *AccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	cp := m.clone(rec)
	cp.Status = cur.Status
	cp.UpdatedAt = time.Now().UTC()
	m.records[rec.ID] = cp
	return nil
}

// cas applies mutate only when the record is in one of the expected
// statuses, mirroring the SQL compare-and-set UPDATEs.
func (m *mockRepo) cas(id uuid.UUID, expected []Status, mutate func(*AccessRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	for _, st := range expected {
		if rec.Status == st {
			mutate(rec)
			rec.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrConcurrentModification
}

func (m *mockRepo) MarkAccepted(_ context.Context, id, memberID uuid.UUID, acceptedAt time.Time) error {
	return m.cas(id, []Status{StatusPending}, func(r *AccessRecord) {
		r.Status = StatusActive
		mid := memberID
		r.MemberID = &mid
		at := acceptedAt
		r.AcceptedAt = &at
		r.InvitationToken = nil
		r.InvitationExpiresAt = nil
	})
}

func (m *mockRepo) MarkRevoked(_ context.Context, id, revokedBy uuid.UUID, reason string, revokedAt time.Time) error {
	return m.cas(id, []Status{StatusPending, StatusActive, StatusSuspended}, func(r *AccessRecord) {
		r.Status = StatusRevoked
		by := revokedBy
		r.RevokedBy = &by
		at := revokedAt
		r.RevokedAt = &at
		if reason != "" {
			rs := reason
			r.RevocationReason = &rs
		}
		r.InvitationToken = nil
	})
}

func (m *mockRepo) MarkSuspended(_ context.Context, id uuid.UUID) error {
	return m.cas(id, []Status{StatusActive}, func(r *AccessRecord) {
		r.Status = StatusSuspended
	})
}

func (m *mockRepo) MarkReactivated(_ context.Context, id uuid.UUID) error {
	return m.cas(id, []Status{StatusSuspended}, func(r *AccessRecord) {
		r.Status = StatusActive
	})
}

func (m *mockRepo) MarkExpired(_ context.Context, id uuid.UUID, from Status) error {
	return m.cas(id, []Status{from}, func(r *AccessRecord) {
		r.Status = StatusExpired
		r.InvitationToken = nil
	})
}

func (m *mockRepo) ClearEmergency(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.EmergencyAccess = false
	rec.EmergencyExpiresAt = nil
	return nil
}

func (m *mockRepo) TouchLastAccess(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTouch != nil {
		return m.failTouch
	}
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	t := at
	rec.LastAccessAt = &t
	return nil
}

func (m *mockRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.listWhere(func(r *AccessRecord) bool {
		return r.Status == StatusPending && r.InvitationExpiresAt != nil && !now.Before(*r.InvitationExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) ListExpiredEmergency(_ context.Context, now time.Time, limit int) ([]*AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.listWhere(func(r *AccessRecord) bool {
		return r.Status == StatusActive && r.EmergencyAccess &&
			r.EmergencyExpiresAt != nil && !now.Before(*r.EmergencyExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockIndexStore is an in-memory IndexStore.
type mockIndexStore struct {
	mu      sync.Mutex
	indexes map[uuid.UUID]*MembershipIndex

	fail error
}

func newMockIndexStore() *mockIndexStore {
	return &mockIndexStore{indexes: make(map[uuid.UUID]*MembershipIndex)}
}

func (m *mockIndexStore) GetMembership(_ context.Context, id uuid.UUID) (*MembershipIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[id]
	if !ok {
		return &MembershipIndex{}, nil
	}
	cp := *idx
	cp.LinkedPatientIDs = append([]uuid.UUID(nil), idx.LinkedPatientIDs...)
	cp.FamilyMemberIDs = append([]uuid.UUID(nil), idx.FamilyMemberIDs...)
	return &cp, nil
}

func (m *mockIndexStore) PutMembership(_ context.Context, id uuid.UUID, idx *MembershipIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	cp := *idx
	cp.LinkedPatientIDs = append([]uuid.UUID(nil), idx.LinkedPatientIDs...)
	cp.FamilyMemberIDs = append([]uuid.UUID(nil), idx.FamilyMemberIDs...)
	m.indexes[id] = &cp
	return nil
}

// mockDirectory resolves identities from a fixed map.
type mockDirectory struct {
	people map[uuid.UUID]*Person
}

func (m *mockDirectory) Lookup(_ context.Context, id uuid.UUID) (*Person, error) {
	p, ok := m.people[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return p, nil
}

// mockAudit records entries in memory.
type mockAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	fail    error
}

func (m *mockAudit) Record(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAudit) byAction(action string) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// mockNotifier records notification sends.
type notifyCall struct {
	Template  string
	Recipient string
	Data      map[string]string
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	fail  error
}

func (m *mockNotifier) Notify(_ context.Context, templateID string, data map[string]string, recipient string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.calls = append(m.calls, notifyCall{Template: templateID, Recipient: recipient, Data: data})
	return nil
}

// mockTokens mints deterministic tokens.
type mockTokens struct {
	mu     sync.Mutex
	n      int
	expiry time.Time
	fail   error
}

func (m *mockTokens) Generate() (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", time.Time{}, m.fail
	}
	m.n++
	return "fam_test_token_" + string(rune('a'+m.n-1)), m.expiry, nil
}
