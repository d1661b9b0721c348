// AngelaMos | 2026
// repository.go

package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/assocly/memberaccess/internal/core"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Member, error)
	FindByPhones(ctx context.Context, phones []string) ([]Member, error)
	GetByPrincipal(ctx context.Context, principalID string) (*Member, error)
	BindPrincipal(
		ctx context.Context,
		memberID, principalID string,
		sealedSecret []byte,
	) (bool, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const memberColumns = `id, tenant_id, full_name, phone, status, principal_id,
		       sealed_secret, created_at, updated_at`

func (r *repository) GetByID(ctx context.Context, id string) (*Member, error) {
	query := `SELECT ` + memberColumns + `
		FROM members
		WHERE id = $1`

	var m Member
	err := r.db.GetContext(ctx, &m, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get member: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	return &m, nil
}

// FindByPhones returns every member whose stored phone equals one of the
// given variants, active members first.
func (r *repository) FindByPhones(
	ctx context.Context,
	phones []string,
) ([]Member, error) {
	if len(phones) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+memberColumns+`
		FROM members
		WHERE phone IN (?)
		ORDER BY (status = 'active') DESC, created_at ASC`, phones)
	if err != nil {
		return nil, fmt.Errorf("find members by phone: %w", err)
	}

	var members []Member
	if err := r.db.SelectContext(ctx, &members, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find members by phone: %w", err)
	}

	return members, nil
}

func (r *repository) GetByPrincipal(
	ctx context.Context,
	principalID string,
) (*Member, error) {
	query := `SELECT ` + memberColumns + `
		FROM members
		WHERE principal_id = $1`

	var m Member
	err := r.db.GetContext(ctx, &m, query, principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get member by principal: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member by principal: %w", err)
	}

	return &m, nil
}

// BindPrincipal links a principal to a member that has none yet. It reports
// false when the member was already bound, leaving the existing link intact.
func (r *repository) BindPrincipal(
	ctx context.Context,
	memberID, principalID string,
	sealedSecret []byte,
) (bool, error) {
	query := `
		UPDATE members
		SET principal_id = $2, sealed_secret = $3, updated_at = NOW()
		WHERE id = $1 AND principal_id IS NULL`

	result, err := r.db.ExecContext(ctx, query, memberID, principalID, sealedSecret)
	if err != nil {
		return false, fmt.Errorf("bind principal: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bind principal: %w", err)
	}

	return rows == 1, nil
}
