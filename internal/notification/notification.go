// Package notification records user-facing notifications and resolves their targets.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/jobs"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

// MarkReadJob is the job name for asynchronous read-state updates.
const MarkReadJob = "notifications.mark_read"

// Notification titles
const (
	TitleAvailable    = "Book Available to be retire."
	TitleStrike       = "Strike issued for not returning the book on time"
	TitlePenalty      = "You have been penalized."
	TitlePenaltyEnded = "Penalization Ended."
	TitleCredit       = "You receive Credits like compensation for Missed Reservation"
)

// Resolver loads the record a target points at.
type Resolver func(ctx context.Context, id string) (any, error)

// Sink appends notifications and serves them back with their targets resolved.
type Sink struct {
	repo      *storage.NotificationRepository
	resolvers map[models.TargetKind]Resolver
	jobs      jobs.Submitter
}

// NewSink creates a notification sink. jobs may be nil, in which case reads never flip is_read.
func NewSink(repo *storage.NotificationRepository, submitter jobs.Submitter) *Sink {
	return &Sink{
		repo:      repo,
		resolvers: make(map[models.TargetKind]Resolver),
		jobs:      submitter,
	}
}

// WithTx returns a sink whose writes join tx.
func (s *Sink) WithTx(tx *sqlx.Tx) *Sink {
	return &Sink{repo: s.repo.WithTx(tx), resolvers: s.resolvers, jobs: s.jobs}
}

// RegisterResolver binds a resolver to a target kind.
func (s *Sink) RegisterResolver(kind models.TargetKind, r Resolver) {
	s.resolvers[kind] = r
}

// Create appends an unread notification for userRef about target.
func (s *Sink) Create(ctx context.Context, userRef, title, message string, target models.Target) (*models.Notification, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("creating notification: invalid target %s", target)
	}

	n := &models.Notification{
		UserRef:    userRef,
		Title:      title,
		TargetKind: target.Kind,
		TargetID:   target.ID,
	}
	if message != "" {
		n.Message = &message
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns the user's notifications, unread first then newest first, and queues them to be marked read.
func (s *Sink) List(ctx context.Context, userRef string, unreadOnly bool) ([]models.NotificationWithTarget, error) {
	list, err := s.repo.ListByUser(ctx, userRef, unreadOnly)
	if err != nil {
		return nil, err
	}

	out := make([]models.NotificationWithTarget, 0, len(list))
	var unread []string
	for _, n := range list {
		resolved, err := s.withTarget(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
		if !n.IsRead {
			unread = append(unread, n.ID)
		}
	}

	s.queueMarkRead(ctx, unread)
	return out, nil
}

// Get returns one of the user's notifications and queues it to be marked read.
func (s *Sink) Get(ctx context.Context, userRef, id string) (*models.NotificationWithTarget, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil || n.UserRef != userRef {
		return nil, apperr.NotFound("notification", id)
	}

	resolved, err := s.withTarget(ctx, *n)
	if err != nil {
		return nil, err
	}

	if !n.IsRead {
		s.queueMarkRead(ctx, []string{n.ID})
	}
	return &resolved, nil
}

// CountUnread returns the number of unread notifications of a user.
func (s *Sink) CountUnread(ctx context.Context, userRef string) (int, error) {
	return s.repo.CountUnread(ctx, userRef)
}

// MarkRead flags ids as read. Unknown and already-read ids are skipped.
func (s *Sink) MarkRead(ctx context.Context, ids []string) error {
	updated, err := s.repo.MarkRead(ctx, ids)
	if err != nil {
		return err
	}
	if skipped := int64(len(ids)) - updated; skipped > 0 {
		log.Printf("Mark read: %d of %d notifications already read or missing", skipped, len(ids))
	}
	return nil
}

// HandleMarkRead is the job handler for MarkReadJob.
func (s *Sink) HandleMarkRead(ctx context.Context, payload []byte) error {
	var ids []string
	if err := jobs.Decode(payload, &ids); err != nil {
		return err
	}
	return s.MarkRead(ctx, ids)
}

func (s *Sink) queueMarkRead(ctx context.Context, ids []string) {
	if s.jobs == nil || len(ids) == 0 {
		return
	}
	if err := s.jobs.Submit(ctx, MarkReadJob, ids, time.Second); err != nil {
		log.Printf("Failed to queue mark-read for %d notifications: %v", len(ids), err)
	}
}

func (s *Sink) withTarget(ctx context.Context, n models.Notification) (models.NotificationWithTarget, error) {
	out := models.NotificationWithTarget{Notification: n}

	resolve, ok := s.resolvers[n.TargetKind]
	if !ok {
		return out, nil
	}

	obj, err := resolve(ctx, n.TargetID)
	if err != nil {
		return out, fmt.Errorf("resolving %s: %w", n.Target(), err)
	}
	out.Object = obj
	return out, nil
}
