package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nearish-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

const identityColumns = `id, account_id, partner_id, connection_code, is_pro, is_pro_via_partner,
		status_emoji, status_text, status_updated_at,
		last_latitude, last_longitude, last_location_at,
		push_token, created_at, updated_at`

// IdentityRepository handles database operations for app identities
type IdentityRepository struct {
	db *pgxpool.Pool
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var id models.Identity
	err := row.Scan(
		&id.ID, &id.AccountID, &id.PartnerID, &id.ConnectionCode,
		&id.IsPro, &id.IsProViaPartner,
		&id.StatusEmoji, &id.StatusText, &id.StatusUpdatedAt,
		&id.LastLatitude, &id.LastLongitude, &id.LastLocationAt,
		&id.PushToken, &id.CreatedAt, &id.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan identity: %w", err)
	}
	return &id, nil
}

// GetByID retrieves an identity by ID
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return scanIdentity(r.db.QueryRow(ctx, query, id))
}

// GetByAccountID retrieves an identity by its auth account ID
func (r *IdentityRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE account_id = $1`
	return scanIdentity(r.db.QueryRow(ctx, query, accountID))
}

// GetByConnectionCode retrieves the identity currently holding a connection code
func (r *IdentityRepository) GetByConnectionCode(ctx context.Context, code string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE connection_code = $1`
	return scanIdentity(r.db.QueryRow(ctx, query, code))
}

// Create inserts a fresh identity for an account
func (r *IdentityRepository) Create(ctx context.Context, accountID string) (*models.Identity, error) {
	now := time.Now().UTC()
	identity := &models.Identity{
		ID:        uuid.New().String(),
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `
		INSERT INTO identities (id, account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, identity.ID, identity.AccountID, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return identity, nil
}

// CodeExists checks if a connection code is already held by any identity
func (r *IdentityRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM identities WHERE connection_code = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}
	return exists, nil
}

// SetConnectionCode stores a connection code on an unpaired identity. A
// concurrent issuer landing on the same code trips the unique index, reported
// as ErrCodeTaken so the caller can draw a new code.
func (r *IdentityRepository) SetConnectionCode(ctx context.Context, id, code string) error {
	query := `
		UPDATE identities SET connection_code = $1, updated_at = now()
		WHERE id = $2 AND partner_id IS NULL
	`
	result, err := r.db.Exec(ctx, query, code, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ErrCodeTaken
		}
		return fmt.Errorf("failed to set connection code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrAlreadyPaired
	}
	return nil
}

// ClaimPartners links two identities symmetrically and clears both connection
// codes, in one transaction. Both rows are locked in id order (consistent lock
// order prevents deadlock between racing claims) and partner_id is re-checked
// under the lock, so two callers racing on the same code cannot both win.
func (r *IdentityRepository) ClaimPartners(ctx context.Context, meID, partnerID string) error {
	firstID, secondID := meID, partnerID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lock := `SELECT partner_id FROM identities WHERE id = $1 FOR UPDATE`
	var firstPartner, secondPartner *string
	if err := tx.QueryRow(ctx, lock, firstID).Scan(&firstPartner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to lock identity: %w", err)
	}
	if err := tx.QueryRow(ctx, lock, secondID).Scan(&secondPartner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to lock identity: %w", err)
	}

	mePartner, targetPartner := firstPartner, secondPartner
	if firstID != meID {
		mePartner, targetPartner = secondPartner, firstPartner
	}
	if mePartner != nil {
		return models.ErrAlreadyPaired
	}
	if targetPartner != nil {
		return models.ErrTargetAlreadyPaired
	}

	update := `
		UPDATE identities
		SET partner_id = $1, connection_code = NULL, updated_at = now()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, update, partnerID, meID); err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}
	if _, err := tx.Exec(ctx, update, meID, partnerID); err != nil {
		return fmt.Errorf("failed to link partner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pairing: %w", err)
	}
	return nil
}

// ClearPartners removes the symmetric link between two identities
func (r *IdentityRepository) ClearPartners(ctx context.Context, aID, bID string) error {
	query := `
		UPDATE identities SET partner_id = NULL, updated_at = now()
		WHERE id = ANY($1)
	`
	if _, err := r.db.Exec(ctx, query, []string{aID, bID}); err != nil {
		return fmt.Errorf("failed to clear partners: %w", err)
	}
	return nil
}

// EntitlementUpdate is one identity's new pro flags
type EntitlementUpdate struct {
	IdentityID      string
	IsPro           bool
	IsProViaPartner bool
}

// ApplyEntitlements recomputes pro flags for an identity with both pair rows
// locked. The identity row and, when paired, the partner row are locked in id
// order inside one transaction (the same lock discipline as ClaimPartners);
// rule receives the locked rows and returns the updates to write, so two
// concurrent reports from the two sides of a pair serialize instead of racing
// read-compute-write. Returns the identity's resulting row.
func (r *IdentityRepository) ApplyEntitlements(ctx context.Context, identityID string, rule func(me, partner *models.Identity) []EntitlementUpdate) (*models.Identity, error) {
	// The partner link can move between the unlocked read and the locks, in
	// which case the attempt restarts against the new link.
	for attempt := 0; attempt < 3; attempt++ {
		me, retry, err := r.applyEntitlementsOnce(ctx, identityID, rule)
		if err != nil {
			return nil, err
		}
		if !retry {
			return me, nil
		}
	}
	return nil, fmt.Errorf("failed to apply entitlements for %s: partner link kept changing", identityID)
}

func (r *IdentityRepository) applyEntitlementsOnce(ctx context.Context, identityID string, rule func(me, partner *models.Identity) []EntitlementUpdate) (*models.Identity, bool, error) {
	// Read the current partner link unlocked first so the rows can be locked
	// in id order, which prevents deadlock between the two sides reporting.
	var partnerID *string
	err := r.db.QueryRow(ctx, `SELECT partner_id FROM identities WHERE id = $1`, identityID).Scan(&partnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, models.ErrNotFound
		}
		return nil, false, fmt.Errorf("failed to read partner link: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lock := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 FOR UPDATE`

	var me, partner *models.Identity
	if partnerID != nil && *partnerID < identityID {
		if partner, err = scanIdentity(tx.QueryRow(ctx, lock, *partnerID)); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, true, nil
			}
			return nil, false, err
		}
	}
	if me, err = scanIdentity(tx.QueryRow(ctx, lock, identityID)); err != nil {
		return nil, false, err
	}
	if partnerID != nil && *partnerID > identityID {
		if partner, err = scanIdentity(tx.QueryRow(ctx, lock, *partnerID)); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, true, nil
			}
			return nil, false, err
		}
	}

	sameLink := (me.PartnerID == nil) == (partnerID == nil) &&
		(me.PartnerID == nil || *me.PartnerID == *partnerID)
	if !sameLink {
		return nil, true, nil
	}

	query := `
		UPDATE identities SET is_pro = $1, is_pro_via_partner = $2, updated_at = now()
		WHERE id = $3
	`
	for _, u := range rule(me, partner) {
		if _, err := tx.Exec(ctx, query, u.IsPro, u.IsProViaPartner, u.IdentityID); err != nil {
			return nil, false, fmt.Errorf("failed to update entitlement: %w", err)
		}
		if u.IdentityID == me.ID {
			me.IsPro, me.IsProViaPartner = u.IsPro, u.IsProViaPartner
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit entitlements: %w", err)
	}
	return me, false, nil
}

// UpdateStatus stores a status emoji/text pair on an identity
func (r *IdentityRepository) UpdateStatus(ctx context.Context, id string, emoji, text *string, at time.Time) error {
	query := `
		UPDATE identities
		SET status_emoji = $1, status_text = $2, status_updated_at = $3, updated_at = now()
		WHERE id = $4
	`
	if _, err := r.db.Exec(ctx, query, emoji, text, at, id); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// UpdateLocation stores the last reported location on an identity
func (r *IdentityRepository) UpdateLocation(ctx context.Context, id string, lat, lon float64, at time.Time) error {
	query := `
		UPDATE identities
		SET last_latitude = $1, last_longitude = $2, last_location_at = $3, updated_at = now()
		WHERE id = $4
	`
	if _, err := r.db.Exec(ctx, query, lat, lon, at, id); err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return nil
}

// UpdatePushToken updates the device push token for an identity
func (r *IdentityRepository) UpdatePushToken(ctx context.Context, id string, pushToken *string) error {
	query := `UPDATE identities SET push_token = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.Exec(ctx, query, pushToken, id); err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}
