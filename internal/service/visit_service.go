package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hospital-waiting-room/internal/ledger"
	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/internal/observability"
	"hospital-waiting-room/internal/relay"
	apperrors "hospital-waiting-room/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const reconcileBatch = 100

// VisitDeps wires the visit lifecycle to its collaborators
type VisitDeps struct {
	Visits        VisitStore
	Patients      PatientStore
	WaitingRoom   WaitingRoomStore
	Receipts      ReceiptStore
	Audit         AuditLogger
	Relay         relay.Publisher
	Ledger        ledger.Client
	DeskName      string
	LedgerTimeout time.Duration
}

// VisitService is the only writer of visit state. It takes no locks: two
// requests racing on one visit resolve as last write wins.
type VisitService struct {
	visits        VisitStore
	patients      PatientStore
	room          WaitingRoomStore
	receipts      ReceiptStore
	audit         AuditLogger
	relay         relay.Publisher
	ledger        ledger.Client
	desk          string
	ledgerTimeout time.Duration
	now           func() time.Time
	tracer        trace.Tracer
}

func NewVisitService(deps VisitDeps) *VisitService {
	timeout := deps.LedgerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VisitService{
		visits:        deps.Visits,
		patients:      deps.Patients,
		room:          deps.WaitingRoom,
		receipts:      deps.Receipts,
		audit:         deps.Audit,
		relay:         deps.Relay,
		ledger:        deps.Ledger,
		desk:          deps.DeskName,
		ledgerTimeout: timeout,
		now:           time.Now,
		tracer:        otel.Tracer("hospital-waiting-room/service"),
	}
}

// RegisterVisit opens an incomplete visit for an existing patient
func (s *VisitService) RegisterVisit(ctx context.Context, patientID uint, actorID uint) (*models.Visit, error) {
	patient, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("patient %d does not exist", patientID))
		}
		return nil, apperrors.NewInternalError("failed to load patient", err)
	}

	visit := &models.Visit{
		PatientID: patient.ID,
		Status:    models.VisitStatusIncomplete,
		Date:      s.now(),
	}
	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, apperrors.NewInternalError("failed to create visit", err)
	}
	visit.Patient = *patient

	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditVisitRegistered,
		fmt.Sprintf("Visit %d registered for patient %d", visit.ID, patient.ID))
	return visit, nil
}

// ListTodaysVisits returns visits dated within the current local day,
// oldest first
func (s *VisitService) ListTodaysVisits(ctx context.Context) ([]models.Visit, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	visits, err := s.visits.ListBetween(ctx, start, end)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list today's visits", err)
	}
	if visits == nil {
		visits = []models.Visit{}
	}
	return visits, nil
}

// GetVisit returns one visit with its patient
func (s *VisitService) GetVisit(ctx context.Context, id uint) (*models.Visit, error) {
	return s.findVisit(ctx, id)
}

// CompleteVisit anchors the treatment on the ledger and, only once the
// ledger accepted it, finalizes the visit in the store.
func (s *VisitService) CompleteVisit(ctx context.Context, id uint, t models.Treatment, actorID uint) (*models.Visit, error) {
	ctx, span := s.tracer.Start(ctx, "VisitService.CompleteVisit",
		trace.WithAttributes(attribute.Int64("visit.id", int64(id))))
	defer span.End()

	t = t.Normalize()
	if missing := t.MissingFields(); len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing " + strings.Join(missing, ", "))
	}

	visit, err := s.findVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if visit.Status == models.VisitStatusComplete {
		return nil, apperrors.NewConflictError(fmt.Sprintf("visit %d is already complete", id))
	}

	key := ledger.RecordKey(id)
	receipt, err := s.receipts.FindByRecordKey(ctx, key)
	switch {
	case err == nil:
		// A previous attempt reached the ledger but not the store.
		observability.LoggerFromContext(ctx).Info().Uint("visit_id", id).Str("tx", receipt.TxHash).Msg("Reusing ledger receipt for visit")
		t = receipt.Treatment()
	case apperrors.Is(err, apperrors.ErrorTypeNotFound):
		receipt, err = s.anchor(ctx, visit, key, t, actorID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger write failed")
			return nil, err
		}
	default:
		return nil, apperrors.NewInternalError("failed to look up ledger receipt", err)
	}

	if err := s.visits.Finalize(ctx, id, t, s.now()); err != nil {
		logger := observability.LoggerFromContext(ctx)
		if receipt.ID == 0 {
			logger.Error().Err(err).Uint("visit_id", id).Str("tx", receipt.TxHash).
				Msg("Visit anchored on ledger with no receipt and no store update; needs manual reconciliation")
		} else {
			logger.Error().Err(err).Uint("visit_id", id).Str("tx", receipt.TxHash).
				Msg("Visit anchored on ledger but store update failed; left for reconciliation")
		}
		return nil, apperrors.NewInternalError("failed to finalize visit", err)
	}
	if receipt.ID != 0 {
		if err := s.receipts.MarkReconciled(ctx, receipt.ID); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Uint("receipt_id", receipt.ID).Msg("Failed to mark receipt reconciled")
		}
	}

	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditVisitCompleted,
		fmt.Sprintf("Visit %d completed, ledger tx %s", id, receipt.TxHash))

	return s.findVisit(ctx, id)
}

// anchor writes the record to the ledger under the ledger timeout and keeps
// a receipt of the accepted write
func (s *VisitService) anchor(ctx context.Context, visit *models.Visit, key string, t models.Treatment, actorID uint) (*models.LedgerReceipt, error) {
	rec := ledger.Record{
		RecordKey:    key,
		PatientKey:   visit.Patient.NIC,
		Prescription: t.Prescription,
		Medicines:    t.Medicines,
		Tests:        t.Tests,
		VisitDate:    visit.Date.UTC().Format(time.RFC3339),
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	ledgerCtx, span := s.tracer.Start(ledgerCtx, "ledger.WriteRecord")
	res, err := s.ledger.WriteRecord(ledgerCtx, rec)
	span.End()
	if err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Uint("visit_id", visit.ID).Msg("Ledger write failed")
		_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditLedgerWriteFailed,
			fmt.Sprintf("Visit %d: %v", visit.ID, err))
		return nil, apperrors.NewLedgerWriteError("ledger did not accept the visit record", err)
	}

	receipt := &models.LedgerReceipt{
		VisitID:      visit.ID,
		RecordKey:    key,
		PatientKey:   rec.PatientKey,
		TxHash:       res.TxHash,
		BlockNumber:  res.BlockNumber,
		Prescription: t.Prescription,
		Tests:        t.Tests,
		Medicines:    t.Medicines,
		VisitDate:    visit.Date,
	}
	if err := s.receipts.Create(ctx, receipt); err != nil {
		receipt.ID = 0
		if apperrors.Is(err, apperrors.ErrorTypeConflict) {
			// A concurrent completion stored it first
			if existing, findErr := s.receipts.FindByRecordKey(ctx, key); findErr == nil {
				return existing, nil
			}
			return receipt, nil
		}
		// Nothing in the store remembers this write now. Finalize below is
		// the only record of it.
		observability.LoggerFromContext(ctx).Error().Err(err).
			Uint("visit_id", visit.ID).
			Str("record_key", key).
			Str("tx", res.TxHash).
			Uint64("block", res.BlockNumber).
			Msg("Visit anchored on ledger but receipt not stored")
		_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditLedgerReceiptLost,
			fmt.Sprintf("Visit %d anchored in tx %s (block %d) without a stored receipt: %v", visit.ID, res.TxHash, res.BlockNumber, err))
	}
	return receipt, nil
}

// NotifyVisit calls the patient in: the visit becomes pending, the desk
// points at it, and every display is told
func (s *VisitService) NotifyVisit(ctx context.Context, id uint, actorID uint) (*models.Visit, error) {
	visit, err := s.findVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if visit.Status == models.VisitStatusComplete {
		return nil, apperrors.NewConflictError(fmt.Sprintf("visit %d is already complete", id))
	}

	if visit.Status == models.VisitStatusIncomplete {
		if err := s.visits.UpdateStatus(ctx, id, models.VisitStatusPending); err != nil {
			return nil, apperrors.NewInternalError("failed to mark visit pending", err)
		}
		visit.Status = models.VisitStatusPending
	}
	if err := s.room.SetCurrent(ctx, s.desk, id, s.now()); err != nil {
		return nil, apperrors.NewInternalError("failed to update waiting room", err)
	}

	s.publish(ctx, relay.NewVisitNotified(visit))
	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditVisitNotified,
		fmt.Sprintf("Visit %d called to %s", id, s.desk))
	return visit, nil
}

// RemoveVisit takes a visit off every display. The visit row is untouched.
func (s *VisitService) RemoveVisit(ctx context.Context, id uint, actorID uint) error {
	if _, err := s.findVisit(ctx, id); err != nil {
		return err
	}
	if err := s.room.ClearCurrentIf(ctx, s.desk, id); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Uint("visit_id", id).Msg("Failed to clear current visit")
	}

	s.publish(ctx, relay.NewVisitRemoved(id))
	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditVisitRemoved,
		fmt.Sprintf("Visit %d removed from waiting room", id))
	return nil
}

// UpdateStatus moves a visit along the state machine. Completion through
// this path needs an existing ledger receipt.
func (s *VisitService) UpdateStatus(ctx context.Context, id uint, status models.VisitStatus, actorID uint) (*models.Visit, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", status))
	}

	visit, err := s.findVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if visit.Status == models.VisitStatusComplete {
		return nil, apperrors.NewConflictError(fmt.Sprintf("visit %d is already complete", id))
	}
	if visit.Status == status {
		return visit, nil
	}
	if !visit.Status.CanTransitionTo(status) {
		return nil, apperrors.NewConflictError(fmt.Sprintf("visit %d cannot move from %s to %s", id, visit.Status, status))
	}

	if status == models.VisitStatusComplete {
		receipt, err := s.receipts.FindByRecordKey(ctx, ledger.RecordKey(id))
		if err != nil {
			if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
				return nil, apperrors.NewConflictError(fmt.Sprintf("visit %d has no ledger record yet", id))
			}
			return nil, apperrors.NewInternalError("failed to look up ledger receipt", err)
		}
		if err := s.finalizeFromReceipt(ctx, receipt); err != nil {
			return nil, err
		}
	} else if err := s.visits.UpdateStatus(ctx, id, status); err != nil {
		return nil, apperrors.NewInternalError("failed to update visit status", err)
	}

	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditVisitStatus,
		fmt.Sprintf("Visit %d moved to %s", id, status))
	return s.findVisit(ctx, id)
}

// PatientHistory reads every anchored record of a patient from the ledger
func (s *VisitService) PatientHistory(ctx context.Context, patientID uint) ([]ledger.Record, error) {
	patient, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load patient", err)
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	records, err := s.ledger.ReadRecords(ledgerCtx, patient.NIC)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read ledger history", err)
	}
	return records, nil
}

// PatientVisits lists a patient's visits from the store, newest first
func (s *VisitService) PatientVisits(ctx context.Context, patientID uint) ([]models.Visit, error) {
	if _, err := s.patients.FindByID(ctx, patientID); err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load patient", err)
	}
	visits, err := s.visits.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list patient visits", err)
	}
	if visits == nil {
		visits = []models.Visit{}
	}
	return visits, nil
}

// WaitingRoom returns today's visits and the desk's current visit id
func (s *VisitService) WaitingRoom(ctx context.Context) ([]models.Visit, *uint, error) {
	visits, err := s.ListTodaysVisits(ctx)
	if err != nil {
		return nil, nil, err
	}
	state, err := s.room.GetState(ctx, s.desk)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to load waiting room state", err)
	}
	return visits, state.CurrentVisitID, nil
}

// ReconcilePending finalizes visits whose ledger write succeeded but whose
// store update did not. It returns how many visits it completed.
func (s *VisitService) ReconcilePending(ctx context.Context) (int, error) {
	receipts, err := s.receipts.ListUnreconciled(ctx, reconcileBatch)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to list unreconciled receipts", err)
	}

	completed := 0
	for i := range receipts {
		receipt := &receipts[i]
		visit, err := s.visits.FindByID(ctx, receipt.VisitID)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Uint("visit_id", receipt.VisitID).Msg("Skipping receipt without visit")
			continue
		}
		if visit.Status == models.VisitStatusComplete {
			if err := s.receipts.MarkReconciled(ctx, receipt.ID); err != nil {
				observability.LoggerFromContext(ctx).Warn().Err(err).Uint("receipt_id", receipt.ID).Msg("Failed to mark receipt reconciled")
			}
			continue
		}
		if err := s.finalizeFromReceipt(ctx, receipt); err != nil {
			observability.LoggerFromContext(ctx).Error().Err(err).Uint("visit_id", receipt.VisitID).Msg("Reconcile failed")
			continue
		}
		completed++
		_ = s.audit.CreateAuditLog(ctx, nil, models.AuditVisitReconciled,
			fmt.Sprintf("Visit %d completed from ledger tx %s", receipt.VisitID, receipt.TxHash))
	}
	return completed, nil
}

func (s *VisitService) finalizeFromReceipt(ctx context.Context, receipt *models.LedgerReceipt) error {
	if err := s.visits.Finalize(ctx, receipt.VisitID, receipt.Treatment(), s.now()); err != nil {
		return apperrors.NewInternalError("failed to finalize visit", err)
	}
	if err := s.receipts.MarkReconciled(ctx, receipt.ID); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Uint("receipt_id", receipt.ID).Msg("Failed to mark receipt reconciled")
	}
	return nil
}

func (s *VisitService) findVisit(ctx context.Context, id uint) (*models.Visit, error) {
	visit, err := s.visits.FindByID(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load visit", err)
	}
	return visit, nil
}

// publish never fails the caller; the relay is best effort
func (s *VisitService) publish(ctx context.Context, ev relay.Event) {
	if s.relay == nil {
		return
	}
	if err := s.relay.Publish(ctx, ev); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("event", string(ev.Kind)).Uint("visit_id", ev.VisitID).Msg("Relay publish failed")
	}
}
