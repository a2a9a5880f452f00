package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hospital-waiting-room/internal/ledger"
	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/internal/relay"
	apperrors "hospital-waiting-room/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDesk = "OPD-01"

type visitFixture struct {
	svc      *VisitService
	patients *memPatients
	visits   *memVisits
	room     *memRoom
	receipts *memReceipts
	audit    *memAudit
	ledger   *mockLedger
	hub      *relay.Hub
	now      time.Time
}

func newVisitFixture(t *testing.T) *visitFixture {
	t.Helper()
	f := &visitFixture{
		patients: newMemPatients(),
		room:     newMemRoom(),
		receipts: newMemReceipts(),
		audit:    &memAudit{},
		ledger:   &mockLedger{},
		hub:      relay.NewHub(8),
		now:      time.Date(2026, 3, 2, 10, 15, 0, 0, time.Local),
	}
	f.visits = newMemVisits(f.patients)
	f.svc = NewVisitService(VisitDeps{
		Visits:        f.visits,
		Patients:      f.patients,
		WaitingRoom:   f.room,
		Receipts:      f.receipts,
		Audit:         f.audit,
		Relay:         f.hub,
		Ledger:        f.ledger,
		DeskName:      testDesk,
		LedgerTimeout: time.Second,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *visitFixture) patient(t *testing.T, nic string) *models.Patient {
	t.Helper()
	p := &models.Patient{Name: "Amal Perera", GuardianName: "Sunil Perera", NIC: nic}
	require.NoError(t, f.patients.Create(context.Background(), p))
	return p
}

func (f *visitFixture) register(t *testing.T, patientID uint) *models.Visit {
	t.Helper()
	v, err := f.svc.RegisterVisit(context.Background(), patientID, 1)
	require.NoError(t, err)
	return v
}

func treatment() models.Treatment {
	return models.Treatment{Prescription: "Paracetamol 500mg", Tests: "Blood test", Medicines: "Paracetamol"}
}

func okReceipt(visitID uint) *ledger.Receipt {
	return &ledger.Receipt{RecordKey: ledger.RecordKey(visitID), TxHash: "0xabc", BlockNumber: 12}
}

func TestRegisterVisit(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")

	v := f.register(t, p.ID)
	assert.Equal(t, models.VisitStatusIncomplete, v.Status)
	assert.Equal(t, f.now, v.Date)
	assert.Equal(t, "Amal Perera", v.Patient.Name)
	assert.True(t, f.audit.has(models.AuditVisitRegistered))
}

func TestRegisterVisit_UnknownPatient(t *testing.T) {
	f := newVisitFixture(t)

	_, err := f.svc.RegisterVisit(context.Background(), 99, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
	assert.Empty(t, f.visits.rows)
}

func TestListTodaysVisits_OnlyToday(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")

	f.now = time.Date(2026, 3, 1, 23, 59, 59, 0, time.Local)
	yesterday := f.register(t, p.ID)
	f.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	late := f.register(t, p.ID)
	f.now = time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	early := f.register(t, p.ID)
	f.now = time.Date(2026, 3, 3, 0, 0, 0, 0, time.Local)
	tomorrow := f.register(t, p.ID)

	f.now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	visits, err := f.svc.ListTodaysVisits(context.Background())
	require.NoError(t, err)

	var ids []uint
	for _, v := range visits {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []uint{early.ID, late.ID}, ids)
	assert.NotContains(t, ids, yesterday.ID)
	assert.NotContains(t, ids, tomorrow.ID)
}

func TestListTodaysVisits_EmptyIsNotNil(t *testing.T) {
	f := newVisitFixture(t)
	visits, err := f.svc.ListTodaysVisits(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, visits)
	assert.Empty(t, visits)
}

func TestCompleteVisit_EndToEnd(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.MatchedBy(func(rec ledger.Record) bool {
		return rec.PatientKey == "123-456" &&
			rec.Prescription == "Paracetamol 500mg" &&
			rec.Tests == "Blood test" &&
			rec.Medicines == "Paracetamol" &&
			rec.RecordKey == ledger.RecordKey(v.ID)
	})).Return(okReceipt(v.ID), nil).Once()

	done, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusComplete, done.Status)
	assert.Equal(t, "Paracetamol 500mg", done.Prescription)
	require.NotNil(t, done.CompletedAt)

	receipt, err := f.receipts.FindByRecordKey(context.Background(), ledger.RecordKey(v.ID))
	require.NoError(t, err)
	assert.True(t, receipt.Reconciled)
	assert.Equal(t, "0xabc", receipt.TxHash)

	_, err = f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict))
	assert.Contains(t, err.Error(), "already complete")

	f.ledger.AssertNumberOfCalls(t, "WriteRecord", 1)
}

func TestCompleteVisit_MissingFields(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	for _, tr := range []models.Treatment{
		{Tests: "Blood test", Medicines: "Paracetamol"},
		{Prescription: "Paracetamol 500mg", Medicines: "Paracetamol"},
		{Prescription: "Paracetamol 500mg", Tests: "Blood test", Medicines: "   "},
	} {
		_, err := f.svc.CompleteVisit(context.Background(), v.ID, tr, 2)
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
	}

	assert.Equal(t, models.VisitStatusIncomplete, f.visits.get(v.ID).Status)
	f.ledger.AssertNotCalled(t, "WriteRecord", mock.Anything, mock.Anything)
}

func TestCompleteVisit_UnknownVisit(t *testing.T) {
	f := newVisitFixture(t)
	_, err := f.svc.CompleteVisit(context.Background(), 404, treatment(), 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
	f.ledger.AssertNotCalled(t, "WriteRecord", mock.Anything, mock.Anything)
}

func TestCompleteVisit_LedgerFailureLeavesStoreUnchanged(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).
		Return(nil, errors.New("execution reverted")).Once()

	_, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeLedgerWrite))

	stored := f.visits.get(v.ID)
	assert.Equal(t, models.VisitStatusIncomplete, stored.Status)
	assert.Empty(t, stored.Prescription)
	assert.Empty(t, f.receipts.rows)
	assert.True(t, f.audit.has(models.AuditLedgerWriteFailed))
}

func TestCompleteVisit_LedgerTimeout(t *testing.T) {
	f := newVisitFixture(t)
	f.svc.ledgerTimeout = 20 * time.Millisecond
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	start := time.Now()
	_, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeLedgerWrite))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, models.VisitStatusIncomplete, f.visits.get(v.ID).Status)
}

func TestCompleteVisit_RetryAfterStoreFailureSkipsLedger(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).Return(okReceipt(v.ID), nil).Once()
	f.visits.setFinalizeErr(errors.New("connection reset"))

	_, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInternal))
	assert.Equal(t, models.VisitStatusIncomplete, f.visits.get(v.ID).Status)

	f.visits.setFinalizeErr(nil)
	done, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusComplete, done.Status)
	f.ledger.AssertNumberOfCalls(t, "WriteRecord", 1)
}

func TestCompleteVisit_ReceiptStoreFailureIsAudited(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).Return(okReceipt(v.ID), nil).Once()
	f.receipts.createErr = errors.New("disk full")
	f.visits.setFinalizeErr(errors.New("connection reset"))

	_, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInternal))
	assert.True(t, f.audit.has(models.AuditLedgerReceiptLost))
	assert.Contains(t, f.audit.detailsFor(models.AuditLedgerReceiptLost), "0xabc")

	n, err := f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompleteVisit_ReceiptStoreFailureStillFinalizes(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).Return(okReceipt(v.ID), nil).Once()
	f.receipts.createErr = errors.New("disk full")

	done, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusComplete, done.Status)
	assert.True(t, f.audit.has(models.AuditLedgerReceiptLost))
}

func TestPatientVisits(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	other := f.patient(t, "999-000")

	first := f.register(t, p.ID)
	f.now = f.now.Add(24 * time.Hour)
	second := f.register(t, p.ID)
	f.register(t, other.ID)

	visits, err := f.svc.PatientVisits(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, second.ID, visits[0].ID)
	assert.Equal(t, first.ID, visits[1].ID)

	_, err = f.svc.PatientVisits(context.Background(), 999)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
}

func TestPatientVisits_NoneIsEmpty(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")

	visits, err := f.svc.PatientVisits(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotNil(t, visits)
	assert.Empty(t, visits)
}

func TestReconcilePending(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).Return(okReceipt(v.ID), nil).Once()
	f.visits.setFinalizeErr(errors.New("connection reset"))
	_, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	require.Error(t, err)
	f.visits.setFinalizeErr(nil)

	n, err := f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := f.visits.get(v.ID)
	assert.Equal(t, models.VisitStatusComplete, stored.Status)
	assert.Equal(t, "Blood test", stored.Tests)
	assert.True(t, f.audit.has(models.AuditVisitReconciled))

	n, err = f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompleteVisit_Concurrent(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).Return(okReceipt(v.ID), nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict), "unexpected error %v", err)
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, models.VisitStatusComplete, f.visits.get(v.ID).Status)
}

func TestNotifyVisit(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	sub := f.hub.Subscribe()
	defer sub.Close()

	called, err := f.svc.NotifyVisit(context.Background(), v.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusPending, called.Status)
	assert.Equal(t, models.VisitStatusPending, f.visits.get(v.ID).Status)

	state, err := f.room.GetState(context.Background(), testDesk)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentVisitID)
	assert.Equal(t, v.ID, *state.CurrentVisitID)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, relay.EventVisitNotified, ev.Kind)
		require.NotNil(t, ev.Visit)
		assert.Equal(t, v.ID, ev.Visit.ID)
		assert.Equal(t, "Amal Perera", ev.Visit.Patient.Name)
	case <-time.After(time.Second):
		t.Fatal("no visit-notified event")
	}

	// calling the same patient again keeps it pending
	again, err := f.svc.NotifyVisit(context.Background(), v.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusPending, again.Status)
}

func TestNotifyVisit_CompleteRejected(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)
	f.ledger.On("WriteRecord", mock.Anything, mock.Anything).Return(okReceipt(v.ID), nil)
	_, err := f.svc.CompleteVisit(context.Background(), v.ID, treatment(), 2)
	require.NoError(t, err)

	sub := f.hub.Subscribe()
	defer sub.Close()

	_, err = f.svc.NotifyVisit(context.Background(), v.ID, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict))
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyVisit_PublishFailureIsNotAnError(t *testing.T) {
	f := newVisitFixture(t)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	f.svc.relay = pub

	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)

	_, err := f.svc.NotifyVisit(context.Background(), v.ID, 2)
	require.NoError(t, err)
	pub.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev relay.Event) bool {
		return ev.Kind == relay.EventVisitNotified && ev.VisitID == v.ID
	}))
}

func TestRemoveVisit(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)
	_, err := f.svc.NotifyVisit(context.Background(), v.ID, 2)
	require.NoError(t, err)

	sub := f.hub.Subscribe()
	defer sub.Close()

	require.NoError(t, f.svc.RemoveVisit(context.Background(), v.ID, 2))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, relay.EventVisitRemoved, ev.Kind)
		assert.Equal(t, v.ID, ev.VisitID)
		assert.Nil(t, ev.Visit)
	case <-time.After(time.Second):
		t.Fatal("no visit-removed event")
	}

	stored := f.visits.get(v.ID)
	assert.Equal(t, models.VisitStatusPending, stored.Status)

	state, err := f.room.GetState(context.Background(), testDesk)
	require.NoError(t, err)
	assert.Nil(t, state.CurrentVisitID)
}

func TestRemoveVisit_Unknown(t *testing.T) {
	f := newVisitFixture(t)
	err := f.svc.RemoveVisit(context.Background(), 5, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
}

func TestUpdateStatus(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, v.ID, "in-progress", 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))

	pending, err := f.svc.UpdateStatus(ctx, v.ID, models.VisitStatusPending, 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusPending, pending.Status)

	_, err = f.svc.UpdateStatus(ctx, v.ID, models.VisitStatusIncomplete, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict))

	_, err = f.svc.UpdateStatus(ctx, v.ID, models.VisitStatusComplete, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict))
	assert.Contains(t, err.Error(), "no ledger record")
	assert.Equal(t, models.VisitStatusPending, f.visits.get(v.ID).Status)
}

func TestUpdateStatus_CompleteFromReceipt(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	v := f.register(t, p.ID)
	ctx := context.Background()

	require.NoError(t, f.receipts.Create(ctx, &models.LedgerReceipt{
		VisitID:      v.ID,
		RecordKey:    ledger.RecordKey(v.ID),
		PatientKey:   "123-456",
		TxHash:       "0xdef",
		Prescription: "Paracetamol 500mg",
		Tests:        "Blood test",
		Medicines:    "Paracetamol",
	}))

	done, err := f.svc.UpdateStatus(ctx, v.ID, models.VisitStatusComplete, 2)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusComplete, done.Status)
	assert.Equal(t, "Paracetamol", done.Medicines)

	_, err = f.svc.UpdateStatus(ctx, v.ID, models.VisitStatusPending, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConflict))
}

func TestPatientHistory(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")

	records := []ledger.Record{{PatientKey: "123-456", Prescription: "Paracetamol 500mg"}}
	f.ledger.On("ReadRecords", mock.Anything, "123-456").Return(records, nil).Once()

	got, err := f.svc.PatientHistory(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	_, err = f.svc.PatientHistory(context.Background(), 999)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
}

func TestWaitingRoom(t *testing.T) {
	f := newVisitFixture(t)
	p := f.patient(t, "123-456")
	first := f.register(t, p.ID)
	f.register(t, p.ID)

	visits, current, err := f.svc.WaitingRoom(context.Background())
	require.NoError(t, err)
	assert.Len(t, visits, 2)
	assert.Nil(t, current)

	_, err = f.svc.NotifyVisit(context.Background(), first.ID, 2)
	require.NoError(t, err)
	_, current, err = f.svc.WaitingRoom(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, first.ID, *current)
}
