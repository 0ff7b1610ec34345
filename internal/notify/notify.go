// Package notify dispatches order notifications (quote issued, quote
// declined, order cancelled) to the external delivery service. Dispatch is
// fire-and-forget relative to the state transition that triggered it: the
// transition has already committed, and delivery failures are recorded
// against the order so they can be retried independently.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/gearstage/ops-api/internal/database"
)

const sendTimeout = 10 * time.Second

// ErrFailureNotFound is returned by Retry for an unknown failure ID.
var ErrFailureNotFound = errors.New("notification failure not found")

// Message is one notification handed to the delivery collaborator.
type Message struct {
	OrderID   uuid.UUID
	CompanyID uuid.UUID
	Kind      string
	Recipient string
}

// Sender delivers a message. Implemented by the platform's email/notification
// collaborator; LogSender is the stand-in when none is configured.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FailureStore persists delivery failures. Satisfied by *database.Queries.
type FailureStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
	CreateNotificationFailure(ctx context.Context, arg database.CreateNotificationFailureParams) (database.NotificationFailure, error)
	GetNotificationFailure(ctx context.Context, id uuid.UUID) (database.NotificationFailure, error)
	ListRetryableNotificationFailures(ctx context.Context, arg database.ListRetryableNotificationFailuresParams) ([]database.NotificationFailure, error)
	BumpNotificationAttempt(ctx context.Context, arg database.BumpNotificationAttemptParams) (database.NotificationFailure, error)
	DeleteNotificationFailure(ctx context.Context, id uuid.UUID) error
}

// Service implements the Dispatcher interface consumed by the order service.
type Service struct {
	store       FailureStore
	sender      Sender
	logger      *zap.Logger
	maxAttempts int32
}

func NewService(store FailureStore, sender Sender, logger *zap.Logger) *Service {
	return &Service{store: store, sender: sender, logger: logger, maxAttempts: 5}
}

// Dispatch sends the notification in the background. Errors never propagate
// to the caller; they are recorded as notification failures.
func (s *Service) Dispatch(orderID, companyID uuid.UUID, kind string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		s.send(ctx, orderID, companyID, kind)
	}()
}

func (s *Service) send(ctx context.Context, orderID, companyID uuid.UUID, kind string) {
	recipient := companyID.String()
	if company, err := s.store.GetCompany(ctx, companyID); err == nil {
		recipient = company.Name
	}

	msg := Message{OrderID: orderID, CompanyID: companyID, Kind: kind, Recipient: recipient}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("order_id", orderID.String()),
			zap.String("kind", kind),
			zap.Error(err))

		if _, recErr := s.store.CreateNotificationFailure(ctx, database.CreateNotificationFailureParams{
			OrderID:   orderID,
			Kind:      kind,
			Recipient: recipient,
			Error:     err.Error(),
		}); recErr != nil {
			s.logger.Error("failed to record notification failure",
				zap.String("order_id", orderID.String()),
				zap.Error(recErr))
		}
		return
	}

	s.logger.Info("notification delivered",
		zap.String("order_id", orderID.String()),
		zap.String("kind", kind))
}

// Retry re-sends a recorded failure. On success the failure row is removed;
// on another delivery error the attempt counter is bumped.
func (s *Service) Retry(ctx context.Context, failureID uuid.UUID) error {
	failure, err := s.store.GetNotificationFailure(ctx, failureID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrFailureNotFound
		}
		return err
	}

	msg := Message{
		OrderID:   failure.OrderID,
		Kind:      failure.Kind,
		Recipient: failure.Recipient,
	}
	if sendErr := s.sender.Send(ctx, msg); sendErr != nil {
		if _, err := s.store.BumpNotificationAttempt(ctx, database.BumpNotificationAttemptParams{
			ID:    failureID,
			Error: sendErr.Error(),
		}); err != nil {
			return err
		}
		return sendErr
	}

	return s.store.DeleteNotificationFailure(ctx, failureID)
}

// SweepRetryable retries every failure still under the attempt cap. Called by
// the background worker; per-failure errors are logged, not returned.
func (s *Service) SweepRetryable(ctx context.Context) (int, error) {
	failures, err := s.store.ListRetryableNotificationFailures(ctx, database.ListRetryableNotificationFailuresParams{
		MaxAttempts: s.maxAttempts,
		Limit:       50,
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, f := range failures {
		if err := s.Retry(ctx, f.ID); err != nil {
			s.logger.Debug("notification retry failed",
				zap.String("failure_id", f.ID.String()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}

// LogSender logs instead of delivering. Used until the real delivery
// collaborator is wired in deployment config.
type LogSender struct {
	Logger *zap.Logger
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.Logger.Info("notification (log sender)",
		zap.String("order_id", msg.OrderID.String()),
		zap.String("kind", msg.Kind),
		zap.String("recipient", msg.Recipient))
	return nil
}
