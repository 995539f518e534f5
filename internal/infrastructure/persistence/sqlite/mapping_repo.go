package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

const mappingColumns = `
	id, origin_system_ref, origin_user_ref, origin_user_name, origin_user_email,
	channel_recipient, channel_username, display_name, is_active, created_at, updated_at`

// IdentityMappingRepository implements port.IdentityMappingRepository
type IdentityMappingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewIdentityMappingRepository creates a new identity mapping repository
func NewIdentityMappingRepository(db *DB, logger *zap.Logger) *IdentityMappingRepository {
	return &IdentityMappingRepository{
		db:     db,
		logger: logger,
	}
}

// FindActive returns the active mapping for an origin user, or nil when none exists
func (r *IdentityMappingRepository) FindActive(ctx context.Context, originSystemRef, originUserRef string) (*entity.IdentityMapping, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM identity_mappings
		WHERE origin_system_ref = ? AND origin_user_ref = ? AND is_active = 1`,
		originSystemRef, originUserRef,
	)
	return r.scanOne(row, "origin_user_ref", originUserRef)
}

// FindActiveByRecipient returns the most recently updated active mapping for a channel recipient
func (r *IdentityMappingRepository) FindActiveByRecipient(ctx context.Context, recipient string) (*entity.IdentityMapping, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM identity_mappings
		WHERE channel_recipient = ? AND is_active = 1
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`,
		recipient,
	)
	return r.scanOne(row, "channel_recipient", recipient)
}

// FindActiveByUsername matches the channel username case-insensitively within an origin
func (r *IdentityMappingRepository) FindActiveByUsername(ctx context.Context, originSystemRef, username string) (*entity.IdentityMapping, error) {
	if username == "" {
		return nil, nil
	}
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM identity_mappings
		WHERE origin_system_ref = ? AND channel_username = ? COLLATE NOCASE AND is_active = 1
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`,
		originSystemRef, username,
	)
	return r.scanOne(row, "channel_username", username)
}

// Upsert creates the mapping or replaces the existing one for the same origin user and reactivates it
func (r *IdentityMappingRepository) Upsert(ctx context.Context, mapping *entity.IdentityMapping) error {
	now := time.Now().UTC()

	_, err := r.db.getExecutor(ctx).ExecContext(ctx, `
		INSERT INTO identity_mappings (
			origin_system_ref, origin_user_ref, origin_user_name, origin_user_email,
			channel_recipient, channel_username, display_name, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (origin_system_ref, origin_user_ref) DO UPDATE SET
			origin_user_name = excluded.origin_user_name,
			origin_user_email = excluded.origin_user_email,
			channel_recipient = excluded.channel_recipient,
			channel_username = excluded.channel_username,
			display_name = excluded.display_name,
			is_active = 1,
			updated_at = excluded.updated_at`,
		mapping.OriginSystemRef,
		mapping.OriginUserRef,
		mapping.OriginUserName,
		mapping.OriginUserEmail,
		mapping.ChannelRecipient,
		mapping.ChannelUsername,
		mapping.DisplayName,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to upsert identity mapping",
			zap.String("origin_system_ref", mapping.OriginSystemRef),
			zap.String("origin_user_ref", mapping.OriginUserRef),
			zap.Error(err))
		return fmt.Errorf("failed to upsert identity mapping: %w", err)
	}

	stored, err := r.FindActive(ctx, mapping.OriginSystemRef, mapping.OriginUserRef)
	if err != nil {
		return err
	}
	if stored != nil {
		*mapping = *stored
	}
	return nil
}

// Deactivate marks one mapping inactive. Returns ErrNotFound when no active mapping matched.
func (r *IdentityMappingRepository) Deactivate(ctx context.Context, originSystemRef, originUserRef string) error {
	result, err := r.db.getExecutor(ctx).ExecContext(ctx, `
		UPDATE identity_mappings SET is_active = 0, updated_at = ?
		WHERE origin_system_ref = ? AND origin_user_ref = ? AND is_active = 1`,
		time.Now().UTC(), originSystemRef, originUserRef,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate identity mapping",
			zap.String("origin_system_ref", originSystemRef),
			zap.String("origin_user_ref", originUserRef),
			zap.Error(err))
		return fmt.Errorf("failed to deactivate identity mapping: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mapping %s/%s: %w", originSystemRef, originUserRef, port.ErrNotFound)
	}
	return nil
}

// DeactivateByOrigin marks every active mapping of an origin inactive
func (r *IdentityMappingRepository) DeactivateByOrigin(ctx context.Context, originSystemRef string) (int, error) {
	result, err := r.db.getExecutor(ctx).ExecContext(ctx, `
		UPDATE identity_mappings SET is_active = 0, updated_at = ?
		WHERE origin_system_ref = ? AND is_active = 1`,
		time.Now().UTC(), originSystemRef,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate origin mappings",
			zap.String("origin_system_ref", originSystemRef),
			zap.Error(err))
		return 0, fmt.Errorf("failed to deactivate origin mappings: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// ListActive lists active mappings, for one origin when originSystemRef is set
func (r *IdentityMappingRepository) ListActive(ctx context.Context, originSystemRef string) ([]*entity.IdentityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE is_active = 1`
	var args []interface{}
	if originSystemRef != "" {
		query += ` AND origin_system_ref = ?`
		args = append(args, originSystemRef)
	}
	query += ` ORDER BY origin_system_ref, origin_user_ref`

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list identity mappings", zap.Error(err))
		return nil, fmt.Errorf("failed to list identity mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*entity.IdentityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity mappings: %w", err)
	}
	return mappings, nil
}

func (r *IdentityMappingRepository) scanOne(row rowScanner, key, value string) (*entity.IdentityMapping, error) {
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find identity mapping", zap.String(key, value), zap.Error(err))
		return nil, fmt.Errorf("failed to find identity mapping: %w", err)
	}
	return m, nil
}

func scanMapping(row rowScanner) (*entity.IdentityMapping, error) {
	var m entity.IdentityMapping
	err := row.Scan(
		&m.ID,
		&m.OriginSystemRef,
		&m.OriginUserRef,
		&m.OriginUserName,
		&m.OriginUserEmail,
		&m.ChannelRecipient,
		&m.ChannelUsername,
		&m.DisplayName,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

var _ port.IdentityMappingRepository = (*IdentityMappingRepository)(nil)
