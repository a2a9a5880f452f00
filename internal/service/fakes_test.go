package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hospital-waiting-room/internal/ledger"
	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/internal/relay"
	apperrors "hospital-waiting-room/pkg/errors"

	"github.com/stretchr/testify/mock"
)

type memPatients struct {
	mu     sync.Mutex
	rows   map[uint]models.Patient
	nextID uint
}

func newMemPatients() *memPatients {
	return &memPatients{rows: make(map[uint]models.Patient)}
}

func (m *memPatients) Create(_ context.Context, p *models.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.NIC == p.NIC {
			return apperrors.NewConflictError("duplicate nic")
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.rows[p.ID] = *p
	return nil
}

func (m *memPatients) FindByID(_ context.Context, id uint) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("patient %d not found", id))
	}
	return &p, nil
}

func (m *memPatients) FindByNIC(_ context.Context, nic string) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.NIC == nic {
			p := p
			return &p, nil
		}
	}
	return nil, apperrors.NewNotFoundError("patient not found")
}

func (m *memPatients) List(_ context.Context, limit int) ([]models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Patient{}
	for _, p := range m.rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memVisits struct {
	mu          sync.Mutex
	rows        map[uint]models.Visit
	nextID      uint
	patients    *memPatients
	finalizeErr error
}

func newMemVisits(patients *memPatients) *memVisits {
	return &memVisits{rows: make(map[uint]models.Visit), patients: patients}
}

func (m *memVisits) Create(_ context.Context, v *models.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	v.ID = m.nextID
	m.rows[v.ID] = *v
	return nil
}

func (m *memVisits) withPatient(v models.Visit) models.Visit {
	if p, err := m.patients.FindByID(context.Background(), v.PatientID); err == nil {
		v.Patient = *p
	}
	return v
}

func (m *memVisits) FindByID(_ context.Context, id uint) (*models.Visit, error) {
	m.mu.Lock()
	v, ok := m.rows[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("visit %d not found", id))
	}
	v = m.withPatient(v)
	return &v, nil
}

func (m *memVisits) ListBetween(_ context.Context, from, to time.Time) ([]models.Visit, error) {
	m.mu.Lock()
	var out []models.Visit
	for _, v := range m.rows {
		if !v.Date.Before(from) && v.Date.Before(to) {
			out = append(out, v)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	for i := range out {
		out[i] = m.withPatient(out[i])
	}
	return out, nil
}

func (m *memVisits) ListByPatient(_ context.Context, patientID uint) ([]models.Visit, error) {
	m.mu.Lock()
	var out []models.Visit
	for _, v := range m.rows {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (m *memVisits) UpdateStatus(_ context.Context, id uint, status models.VisitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return apperrors.NewNotFoundError("visit not found")
	}
	v.Status = status
	m.rows[id] = v
	return nil
}

func (m *memVisits) Finalize(_ context.Context, id uint, t models.Treatment, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	v, ok := m.rows[id]
	if !ok {
		return apperrors.NewNotFoundError("visit not found")
	}
	v.Prescription, v.Tests, v.Medicines = t.Prescription, t.Tests, t.Medicines
	v.Status = models.VisitStatusComplete
	v.CompletedAt = &at
	m.rows[id] = v
	return nil
}

func (m *memVisits) get(id uint) models.Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memVisits) setFinalizeErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeErr = err
}

type memRoom struct {
	mu    sync.Mutex
	state map[string]*models.WaitingRoomState
}

func newMemRoom() *memRoom {
	return &memRoom{state: make(map[string]*models.WaitingRoomState)}
}

func (m *memRoom) GetState(_ context.Context, desk string) (*models.WaitingRoomState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state[desk]
	if !ok {
		s = &models.WaitingRoomState{DeskName: desk}
		m.state[desk] = s
	}
	cp := *s
	return &cp, nil
}

func (m *memRoom) SetCurrent(_ context.Context, desk string, visitID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[desk] = &models.WaitingRoomState{DeskName: desk, CurrentVisitID: &visitID, NotifiedAt: &at}
	return nil
}

func (m *memRoom) ClearCurrentIf(_ context.Context, desk string, visitID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.state[desk]; ok && s.CurrentVisitID != nil && *s.CurrentVisitID == visitID {
		s.CurrentVisitID = nil
		s.NotifiedAt = nil
	}
	return nil
}

type memReceipts struct {
	mu        sync.Mutex
	rows      map[string]models.LedgerReceipt
	nextID    uint
	createErr error
}

func newMemReceipts() *memReceipts {
	return &memReceipts{rows: make(map[string]models.LedgerReceipt)}
}

func (m *memReceipts) Create(_ context.Context, r *models.LedgerReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.rows[r.RecordKey]; ok {
		return apperrors.NewConflictError("duplicate record key")
	}
	m.nextID++
	r.ID = m.nextID
	m.rows[r.RecordKey] = *r
	return nil
}

func (m *memReceipts) FindByRecordKey(_ context.Context, key string) (*models.LedgerReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("ledger receipt not found")
	}
	return &r, nil
}

func (m *memReceipts) ListUnreconciled(_ context.Context, limit int) ([]models.LedgerReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerReceipt
	for _, r := range m.rows {
		if !r.Reconciled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReceipts) MarkReconciled(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.rows {
		if r.ID == id {
			r.Reconciled = true
			m.rows[k] = r
		}
	}
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	actions []string
	details []string
}

func (m *memAudit) CreateAuditLog(_ context.Context, _ *uint, action string, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	m.details = append(m.details, details)
	return nil
}

func (m *memAudit) detailsFor(action string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.actions {
		if a == action {
			return m.details[i]
		}
	}
	return ""
}

func (m *memAudit) has(action string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a == action {
			return true
		}
	}
	return false
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) WriteRecord(ctx context.Context, rec ledger.Record) (*ledger.Receipt, error) {
	args := m.Called(ctx, rec)
	r, _ := args.Get(0).(*ledger.Receipt)
	return r, args.Error(1)
}

func (m *mockLedger) ReadRecords(ctx context.Context, patientKey string) ([]ledger.Record, error) {
	args := m.Called(ctx, patientKey)
	r, _ := args.Get(0).([]ledger.Record)
	return r, args.Error(1)
}

func (m *mockLedger) Close() error { return nil }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev relay.Event) error {
	return m.Called(ctx, ev).Error(0)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) ReconcilePending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type memUsers struct {
	mu     sync.Mutex
	rows   map[string]models.User
	nextID uint
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[string]models.User)}
}

func (m *memUsers) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[username]
	if !ok {
		return nil, apperrors.NewNotFoundError("user not found")
	}
	return &u, nil
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[u.Username]; ok {
		return apperrors.NewConflictError("username already exists")
	}
	m.nextID++
	u.ID = m.nextID
	m.rows[u.Username] = *u
	return nil
}

func (m *memUsers) CountByRole(_ context.Context, role string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.rows {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}
