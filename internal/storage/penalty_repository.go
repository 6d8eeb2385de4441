package storage

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/storage/models"
)

var penaltyColumns = []any{"id", "user_ref", "start_date", "end_date", "complete", "created_at"}

// PenaltyRepository provides data access for strikes, strike groups and penalties.
type PenaltyRepository struct {
	BaseRepository
}

// NewPenaltyRepository creates a new penalty repository.
func NewPenaltyRepository(db *DB) *PenaltyRepository {
	return &PenaltyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository bound to tx.
func (r *PenaltyRepository) WithTx(tx *sqlx.Tx) *PenaltyRepository {
	return &PenaltyRepository{BaseRepository: r.withTx(tx)}
}

// CreateStrike inserts a new strike.
func (r *PenaltyRepository) CreateStrike(ctx context.Context, strike *models.Strike) error {
	strike.ID = GenerateID()
	strike.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO strikes (id, reservation_id, reason, created_at) VALUES (?, ?, ?, ?)
	`, strike.ID, strike.ReservationID, strike.Reason, strike.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting strike for reservation %s: %w", strike.ReservationID, ErrDuplicate)
		}
		return fmt.Errorf("inserting strike: %w", err)
	}

	return nil
}

// GetStrike retrieves a strike by its ID.
func (r *PenaltyRepository) GetStrike(ctx context.Context, id string) (*models.Strike, error) {
	strike := &models.Strike{}
	found, err := r.getOne(ctx, strike, dialect.From("strikes").Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, fmt.Errorf("querying strike: %w", err)
	}
	if !found {
		return nil, nil
	}
	return strike, nil
}

// ListStrikesByUser retrieves all strikes issued against a user, newest first.
func (r *PenaltyRepository) ListStrikesByUser(ctx context.Context, userRef string) ([]models.Strike, error) {
	var strikes []models.Strike
	if err := r.selectAll(ctx, &strikes, r.strikesOfUser(userRef).Order(goqu.I("s.created_at").Desc())); err != nil {
		return nil, fmt.Errorf("querying strikes by user: %w", err)
	}
	return strikes, nil
}

// CountStrikesByUser returns how many strikes a user has received.
func (r *PenaltyRepository) CountStrikesByUser(ctx context.Context, userRef string) (int, error) {
	n, err := r.count(ctx, r.strikesOfUser(userRef))
	if err != nil {
		return 0, fmt.Errorf("counting strikes: %w", err)
	}
	return n, nil
}

func (r *PenaltyRepository) strikesOfUser(userRef string) *goqu.SelectDataset {
	return dialect.From(goqu.T("strikes").As("s")).
		Select("s.id", "s.reservation_id", "s.reason", "s.created_at").
		Join(goqu.T("reservations").As("r"), goqu.On(goqu.I("r.id").Eq(goqu.I("s.reservation_id")))).
		Where(goqu.I("r.user_ref").Eq(userRef))
}

// FindOpenGroup retrieves the user's strike group without a penalty, if any.
func (r *PenaltyRepository) FindOpenGroup(ctx context.Context, userRef string) (*models.StrikeGroup, error) {
	group := &models.StrikeGroup{}
	ds := dialect.From("strike_groups").Where(goqu.C("user_ref").Eq(userRef), goqu.C("penalty_id").IsNull())
	found, err := r.getOne(ctx, group, ds)
	if err != nil {
		return nil, fmt.Errorf("querying open strike group: %w", err)
	}
	if !found {
		return nil, nil
	}
	return group, nil
}

// CreateGroup inserts a new open strike group.
// It returns ErrOpenGroupExists when the user already has one.
func (r *PenaltyRepository) CreateGroup(ctx context.Context, group *models.StrikeGroup) error {
	group.ID = GenerateID()
	group.CreatedAt = r.Now()
	group.PenaltyID = nil

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO strike_groups (id, user_ref, penalty_id, created_at) VALUES (?, ?, NULL, ?)
	`, group.ID, group.UserRef, group.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting strike group for %s: %w", group.UserRef, ErrOpenGroupExists)
		}
		return fmt.Errorf("inserting strike group: %w", err)
	}

	return nil
}

// AddStrikeToGroup links a strike to a group. The store refuses a fourth strike.
func (r *PenaltyRepository) AddStrikeToGroup(ctx context.Context, groupID, strikeID string) error {
	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO strike_group_strikes (group_id, strike_id) VALUES (?, ?)
	`, groupID, strikeID)

	if err != nil {
		return fmt.Errorf("adding strike to group: %w", err)
	}

	return nil
}

// CountGroupStrikes returns the number of strikes in a group.
func (r *PenaltyRepository) CountGroupStrikes(ctx context.Context, groupID string) (int, error) {
	n, err := r.count(ctx, dialect.From("strike_group_strikes").Where(goqu.C("group_id").Eq(groupID)))
	if err != nil {
		return 0, fmt.Errorf("counting group strikes: %w", err)
	}
	return n, nil
}

// CloseGroup attaches a penalty to an open group.
func (r *PenaltyRepository) CloseGroup(ctx context.Context, groupID, penaltyID string) error {
	result, err := r.Q().ExecContext(ctx, `
		UPDATE strike_groups SET penalty_id = ? WHERE id = ? AND penalty_id IS NULL
	`, penaltyID, groupID)

	if err != nil {
		return fmt.Errorf("closing strike group: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("closing strike group %s: %w", groupID, ErrStatusChanged)
	}

	return nil
}

// GetGroupByPenalty retrieves the group a penalty closed.
func (r *PenaltyRepository) GetGroupByPenalty(ctx context.Context, penaltyID string) (*models.StrikeGroup, error) {
	group := &models.StrikeGroup{}
	found, err := r.getOne(ctx, group, dialect.From("strike_groups").Where(goqu.C("penalty_id").Eq(penaltyID)))
	if err != nil {
		return nil, fmt.Errorf("querying strike group by penalty: %w", err)
	}
	if !found {
		return nil, nil
	}
	return group, nil
}

// ListGroupStrikes retrieves the strikes of a group in the order they were issued.
func (r *PenaltyRepository) ListGroupStrikes(ctx context.Context, groupID string) ([]models.Strike, error) {
	ds := dialect.From(goqu.T("strikes").As("s")).
		Select("s.id", "s.reservation_id", "s.reason", "s.created_at").
		Join(goqu.T("strike_group_strikes").As("g"), goqu.On(goqu.I("g.strike_id").Eq(goqu.I("s.id")))).
		Where(goqu.I("g.group_id").Eq(groupID)).
		Order(goqu.I("s.created_at").Asc())

	var strikes []models.Strike
	if err := r.selectAll(ctx, &strikes, ds); err != nil {
		return nil, fmt.Errorf("querying group strikes: %w", err)
	}
	return strikes, nil
}

// CreatePenalty inserts a new penalty.
func (r *PenaltyRepository) CreatePenalty(ctx context.Context, penalty *models.Penalty) error {
	penalty.ID = GenerateID()
	penalty.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO penalties (id, user_ref, start_date, end_date, complete, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, penalty.ID, penalty.UserRef, penalty.StartDate, penalty.EndDate, penalty.Complete, penalty.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting penalty: %w", err)
	}

	return nil
}

// GetPenalty retrieves a penalty by its ID.
func (r *PenaltyRepository) GetPenalty(ctx context.Context, id string) (*models.Penalty, error) {
	penalty := &models.Penalty{}
	found, err := r.getOne(ctx, penalty, dialect.From("penalties").Select(penaltyColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, fmt.Errorf("querying penalty: %w", err)
	}
	if !found {
		return nil, nil
	}
	return penalty, nil
}

// ListPenaltiesByUser retrieves all penalties of a user, newest first.
func (r *PenaltyRepository) ListPenaltiesByUser(ctx context.Context, userRef string) ([]models.Penalty, error) {
	var penalties []models.Penalty
	ds := dialect.From("penalties").Select(penaltyColumns...).
		Where(goqu.C("user_ref").Eq(userRef)).
		Order(goqu.C("created_at").Desc())
	if err := r.selectAll(ctx, &penalties, ds); err != nil {
		return nil, fmt.Errorf("querying penalties by user: %w", err)
	}
	return penalties, nil
}

// CountPenaltiesByUser returns how many penalties a user has ever received.
func (r *PenaltyRepository) CountPenaltiesByUser(ctx context.Context, userRef string) (int, error) {
	n, err := r.count(ctx, dialect.From("penalties").Where(goqu.C("user_ref").Eq(userRef)))
	if err != nil {
		return 0, fmt.Errorf("counting penalties: %w", err)
	}
	return n, nil
}

// FindActivePenalty retrieves an incomplete penalty of the user, permanent ones first.
func (r *PenaltyRepository) FindActivePenalty(ctx context.Context, userRef string) (*models.Penalty, error) {
	penalty := &models.Penalty{}
	ds := dialect.From("penalties").Select(penaltyColumns...).
		Where(goqu.C("user_ref").Eq(userRef), goqu.C("complete").IsFalse()).
		Order(goqu.C("end_date").Desc().NullsFirst()).
		Limit(1)

	found, err := r.getOne(ctx, penalty, ds)
	if err != nil {
		return nil, fmt.Errorf("querying active penalty: %w", err)
	}
	if !found {
		return nil, nil
	}
	return penalty, nil
}

// ListDuePenalties retrieves incomplete penalties whose end date is before day.
// Permanent penalties are never due.
func (r *PenaltyRepository) ListDuePenalties(ctx context.Context, day models.Date) ([]models.Penalty, error) {
	var penalties []models.Penalty
	ds := dialect.From("penalties").Select(penaltyColumns...).
		Where(
			goqu.C("end_date").IsNotNull(),
			goqu.C("end_date").Lt(day.String()),
			goqu.C("complete").IsFalse(),
		).
		Order(goqu.C("end_date").Asc(), goqu.C("id").Asc())

	if err := r.selectAll(ctx, &penalties, ds); err != nil {
		return nil, fmt.Errorf("querying due penalties: %w", err)
	}
	return penalties, nil
}

// MarkComplete flags a penalty as served, provided it was still incomplete.
func (r *PenaltyRepository) MarkComplete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, `
		UPDATE penalties SET complete = 1 WHERE id = ? AND complete = 0
	`, id)

	if err != nil {
		return fmt.Errorf("completing penalty: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("completing penalty %s: %w", id, ErrStatusChanged)
	}

	return nil
}
