package dataspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/ids"
	"procuredata.io/internal/obs"
)

const maxAccessDurationDays = 3650

// Notifier delivers workflow notifications for a transaction.
type Notifier interface {
	Notify(ctx context.Context, transactionID string, event Event) error
}

// AccessRequest is the payload of a new data access request.
type AccessRequest struct {
	AssetID            string `json:"asset_id"`
	ConsumerOrgID      string `json:"consumer_org_id"`
	Purpose            string `json:"purpose"`
	Justification      string `json:"justification"`
	AccessDurationDays int    `json:"access_duration_days"`
}

// Service runs the access-request workflow over the privileged store.
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewService wires the workflow. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestAccess opens a transaction for an asset on behalf of a consumer organisation
// and submits it to the subject organisation.
func (s *Service) RequestAccess(ctx context.Context, userID string, req AccessRequest) (DataTransaction, error) {
	req.AssetID = strings.TrimSpace(req.AssetID)
	req.ConsumerOrgID = strings.TrimSpace(req.ConsumerOrgID)
	req.Purpose = strings.TrimSpace(req.Purpose)
	req.Justification = strings.TrimSpace(req.Justification)
	switch {
	case req.AssetID == "" || req.ConsumerOrgID == "":
		return DataTransaction{}, fmt.Errorf("%w: asset_id and consumer_org_id are required", ErrInvalidRequest)
	case req.Purpose == "":
		return DataTransaction{}, fmt.Errorf("%w: purpose is required", ErrInvalidRequest)
	case req.AccessDurationDays < 1 || req.AccessDurationDays > maxAccessDurationDays:
		return DataTransaction{}, fmt.Errorf("%w: access_duration_days must be between 1 and %d", ErrInvalidRequest, maxAccessDurationDays)
	}

	asset, err := s.store.Catalog().GetAsset(ctx, req.AssetID)
	if err != nil {
		return DataTransaction{}, err
	}
	if asset.Status == AssetArchived {
		return DataTransaction{}, fmt.Errorf("%w: asset is archived", ErrPrecondition)
	}
	if err := s.requireMember(ctx, userID, req.ConsumerOrgID); err != nil {
		return DataTransaction{}, err
	}

	now := s.now()
	tx := DataTransaction{
		ID:                 ids.New(),
		AssetID:            asset.ID,
		ConsumerOrgID:      req.ConsumerOrgID,
		SubjectOrgID:       asset.SubjectOrgID,
		HolderOrgID:        asset.HolderOrgID,
		Purpose:            req.Purpose,
		Justification:      req.Justification,
		AccessDurationDays: req.AccessDurationDays,
		Status:             StatusInitiated,
		PaymentStatus:      PaymentNotRequired,
		RequestedBy:        userID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Transactions().Create(ctx, &tx); err != nil {
		return DataTransaction{}, err
	}
	return s.apply(ctx, userID, req.ConsumerOrgID, tx, StatusPendingSubject, "", "")
}

// PreApprove records the subject organisation's consent.
func (s *Service) PreApprove(ctx context.Context, userID, txID, notes string) (DataTransaction, error) {
	tx, err := s.load(ctx, txID)
	if err != nil {
		return DataTransaction{}, err
	}
	if err := ValidateTransition(tx.Status, StatusPendingHolder); err != nil {
		return DataTransaction{}, err
	}
	if err := s.requireMember(ctx, userID, tx.SubjectOrgID); err != nil {
		return DataTransaction{}, err
	}
	return s.apply(ctx, userID, tx.SubjectOrgID, tx, StatusPendingHolder, ActionPreApprove, notes)
}

// Approve records the holder organisation's final approval.
func (s *Service) Approve(ctx context.Context, userID, txID, notes string) (DataTransaction, error) {
	tx, err := s.load(ctx, txID)
	if err != nil {
		return DataTransaction{}, err
	}
	if err := ValidateTransition(tx.Status, StatusApproved); err != nil {
		return DataTransaction{}, err
	}
	if err := s.requireMember(ctx, userID, tx.HolderOrgID); err != nil {
		return DataTransaction{}, err
	}
	return s.apply(ctx, userID, tx.HolderOrgID, tx, StatusApproved, ActionApprove, notes)
}

// Deny rejects the request at whichever approval stage it is waiting in.
func (s *Service) Deny(ctx context.Context, userID, txID, notes string) (DataTransaction, error) {
	tx, err := s.load(ctx, txID)
	if err != nil {
		return DataTransaction{}, err
	}
	var to Status
	var org string
	switch tx.Status {
	case StatusPendingSubject:
		to, org = StatusDeniedSubject, tx.SubjectOrgID
	case StatusPendingHolder:
		to, org = StatusDeniedHolder, tx.HolderOrgID
	default:
		return DataTransaction{}, fmt.Errorf("%w: cannot deny a transaction in status %s", ErrIllegalTransition, tx.Status)
	}
	if err := s.requireMember(ctx, userID, org); err != nil {
		return DataTransaction{}, err
	}
	return s.apply(ctx, userID, org, tx, to, ActionDeny, notes)
}

// Cancel withdraws a request that has not been decided yet. Only the requester
// or a member of the consumer organisation may cancel.
func (s *Service) Cancel(ctx context.Context, userID, txID, notes string) (DataTransaction, error) {
	tx, err := s.load(ctx, txID)
	if err != nil {
		return DataTransaction{}, err
	}
	if err := ValidateTransition(tx.Status, StatusCancelled); err != nil {
		return DataTransaction{}, err
	}
	if tx.RequestedBy != userID {
		if err := s.requireMember(ctx, userID, tx.ConsumerOrgID); err != nil {
			return DataTransaction{}, err
		}
	}
	return s.apply(ctx, userID, tx.ConsumerOrgID, tx, StatusCancelled, ActionCancel, notes)
}

// Complete marks an approved transaction as delivered by the holder.
func (s *Service) Complete(ctx context.Context, userID, txID string) (DataTransaction, error) {
	tx, err := s.load(ctx, txID)
	if err != nil {
		return DataTransaction{}, err
	}
	if err := ValidateTransition(tx.Status, StatusCompleted); err != nil {
		return DataTransaction{}, err
	}
	if err := s.requireMember(ctx, userID, tx.HolderOrgID); err != nil {
		return DataTransaction{}, err
	}
	return s.apply(ctx, userID, tx.HolderOrgID, tx, StatusCompleted, "", "")
}

// Revoke withdraws access that was granted. Subject or holder members may revoke.
func (s *Service) Revoke(ctx context.Context, userID, txID, notes string) (DataTransaction, error) {
	tx, err := s.load(ctx, txID)
	if err != nil {
		return DataTransaction{}, err
	}
	if err := ValidateTransition(tx.Status, StatusRevoked); err != nil {
		return DataTransaction{}, err
	}
	org := tx.SubjectOrgID
	if err := s.requireMember(ctx, userID, org); err != nil {
		if !errors.Is(err, auth.ErrForbidden) {
			return DataTransaction{}, err
		}
		org = tx.HolderOrgID
		if err := s.requireMember(ctx, userID, org); err != nil {
			return DataTransaction{}, err
		}
	}
	return s.apply(ctx, userID, org, tx, StatusRevoked, "", notes)
}

func (s *Service) load(ctx context.Context, txID string) (DataTransaction, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return DataTransaction{}, fmt.Errorf("%w: transaction id is required", ErrInvalidRequest)
	}
	return s.store.Transactions().Get(ctx, txID)
}

func (s *Service) requireMember(ctx context.Context, userID, orgID string) error {
	ok, err := IsMember(ctx, s.store.Memberships(), userID, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user is not a member of organization %s", auth.ErrForbidden, orgID)
	}
	return nil
}

// apply persists a validated transition, then logs and notifies. Notification
// failures are logged and never undo the committed status.
func (s *Service) apply(ctx context.Context, userID, actorOrg string, tx DataTransaction, to Status, action ApprovalAction, notes string) (DataTransaction, error) {
	var entry *ApprovalEntry
	if action != "" {
		entry = &ApprovalEntry{
			ID:            ids.New(),
			TransactionID: tx.ID,
			ActorUserID:   userID,
			ActorOrgID:    actorOrg,
			Action:        action,
			Notes:         strings.TrimSpace(notes),
			CreatedAt:     s.now(),
		}
	}
	updated, err := s.store.Transactions().Transition(ctx, tx.ID, tx.Status, to, entry)
	if err != nil {
		return DataTransaction{}, err
	}
	obs.TransactionTransitions.WithLabelValues(string(to)).Inc()

	level := LevelInfo
	if to == StatusDeniedSubject || to == StatusDeniedHolder || to == StatusRevoked {
		level = LevelWarning
	}
	gl := &GovernanceLog{
		ID:             ids.New(),
		OrganizationID: actorOrg,
		TransactionID:  tx.ID,
		UserID:         userID,
		Level:          level,
		Category:       "transaction",
		Message:        fmt.Sprintf("status %s -> %s", tx.Status, to),
		Metadata:       map[string]any{"from": string(tx.Status), "to": string(to)},
		CreatedAt:      s.now(),
	}
	if err := s.store.GovernanceLogs().Append(ctx, gl); err != nil {
		obs.Logger().Warn("governance log append failed",
			zap.String("transaction_id", tx.ID), zap.Error(err))
	}

	if event, ok := EventFor(to); ok && s.notifier != nil {
		if err := s.notifier.Notify(ctx, tx.ID, event); err != nil {
			obs.Logger().Warn("notification dispatch failed",
				zap.String("transaction_id", tx.ID),
				zap.String("event", string(event)),
				zap.Error(err))
		}
	}
	return updated, nil
}

// IsMember reports whether userID has a profile in orgID.
func IsMember(ctx context.Context, memberships MembershipStore, userID, orgID string) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(orgID) == "" {
		return false, nil
	}
	list, err := memberships.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range list {
		if m.OrganizationID == orgID {
			return true, nil
		}
	}
	return false, nil
}
