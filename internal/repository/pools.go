package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

type PoolRepo struct {
	db *sql.DB
}

func NewPoolRepo(db *sql.DB) *PoolRepo {
	return &PoolRepo{db: db}
}

func (r *PoolRepo) Create(pool *models.ContributionPool) error {
	_, err := r.db.Exec(`
		INSERT INTO contribution_pools (id, tenant_id, cycle_name, total_contributed, total_distributable_profit, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pool.ID, pool.TenantID, pool.CycleName, pool.TotalContributed,
		pool.TotalDistributableProfit, pool.Status, pool.CreatedAt)
	return err
}

const poolQuery = `
	SELECT id, tenant_id, cycle_name, total_contributed, total_distributable_profit, status, created_at, finalized_at
	FROM contribution_pools
	WHERE tenant_id = $1 AND id = $2`

func (r *PoolRepo) GetByID(tenantID, poolID uuid.UUID) (*models.ContributionPool, error) {
	return scanPool(r.db.QueryRow(poolQuery, tenantID, poolID))
}

// GetByIDTx reads the pool through tx. After Finalize, this observes the
// frozen row rather than a snapshot taken before the status flip.
func (r *PoolRepo) GetByIDTx(tx *sql.Tx, tenantID, poolID uuid.UUID) (*models.ContributionPool, error) {
	return scanPool(tx.QueryRow(poolQuery, tenantID, poolID))
}

func scanPool(row *sql.Row) (*models.ContributionPool, error) {
	var p models.ContributionPool
	var finalizedAt sql.NullTime
	err := row.Scan(&p.ID, &p.TenantID, &p.CycleName, &p.TotalContributed,
		&p.TotalDistributableProfit, &p.Status, &p.CreatedAt, &finalizedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if finalizedAt.Valid {
		p.FinalizedAt = &finalizedAt.Time
	}
	return &p, nil
}

// AddContribution records a member's stake and grows the pool aggregate in
// one transaction. The aggregate update is conditional on the pool still
// being open, so contributions can never land in a frozen pool.
func (r *PoolRepo) AddContribution(tx *sql.Tx, c *models.MemberContribution) error {
	result, err := tx.Exec(`
		UPDATE contribution_pools
		SET total_contributed = total_contributed + $1
		WHERE tenant_id = $2 AND id = $3 AND status = $4`,
		c.AmountContributed, c.TenantID, c.PoolID, models.PoolStatusOpen)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPoolFrozen
	}

	_, err = tx.Exec(`
		INSERT INTO member_contributions (id, tenant_id, pool_id, member_id, amount_contributed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.TenantID, c.PoolID, c.MemberID, c.AmountContributed, c.CreatedAt)
	return err
}

// AddProfit grows the distributable profit, conditional on the pool still
// being open.
func (r *PoolRepo) AddProfit(tx *sql.Tx, tenantID, poolID uuid.UUID, amount decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE contribution_pools
		SET total_distributable_profit = total_distributable_profit + $1
		WHERE tenant_id = $2 AND id = $3 AND status = $4`,
		amount, tenantID, poolID, models.PoolStatusOpen)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPoolFrozen
	}
	return nil
}

const contributionsQuery = `
	SELECT id, tenant_id, pool_id, member_id, amount_contributed, created_at
	FROM member_contributions
	WHERE tenant_id = $1 AND pool_id = $2
	ORDER BY created_at`

func (r *PoolRepo) ListContributions(tenantID, poolID uuid.UUID) ([]models.MemberContribution, error) {
	return scanContributions(r.db.Query(contributionsQuery, tenantID, poolID))
}

// ListContributionsTx reads the contributions through tx, pairing with
// GetByIDTx for a consistent post-freeze snapshot.
func (r *PoolRepo) ListContributionsTx(tx *sql.Tx, tenantID, poolID uuid.UUID) ([]models.MemberContribution, error) {
	return scanContributions(tx.Query(contributionsQuery, tenantID, poolID))
}

func scanContributions(rows *sql.Rows, err error) ([]models.MemberContribution, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []models.MemberContribution
	for rows.Next() {
		var c models.MemberContribution
		if err := rows.Scan(&c.ID, &c.TenantID, &c.PoolID, &c.MemberID,
			&c.AmountContributed, &c.CreatedAt); err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// Finalize freezes the pool. The conditional status check guarantees a
// single winner among concurrent share-out attempts.
func (r *PoolRepo) Finalize(tx *sql.Tx, tenantID, poolID uuid.UUID) error {
	result, err := tx.Exec(`
		UPDATE contribution_pools
		SET status = $1, finalized_at = $2
		WHERE tenant_id = $3 AND id = $4 AND status = $5`,
		models.PoolStatusFinalized, time.Now(), tenantID, poolID, models.PoolStatusOpen)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}
