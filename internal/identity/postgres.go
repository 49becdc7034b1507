package identity

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reconciliation/internal/domain"
)

// PostgresDirectory resolves aliases from the advisors table. The table is
// read in full on each lookup; it holds tens of rows, and reading it fresh
// keeps alias changes visible without a cache invalidation path.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Resolve implements domain.AliasResolver.
func (d *PostgresDirectory) Resolve(ctx context.Context, advisorID string) (domain.AliasSet, error) {
	advisors, err := d.load(ctx)
	if err != nil {
		return domain.AliasSet{}, err
	}
	return resolveAlias(advisors, advisorID)
}

// Identities implements domain.AliasResolver.
func (d *PostgresDirectory) Identities(ctx context.Context) (domain.IdentityFunc, error) {
	advisors, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	return identityIndex(advisors), nil
}

func (d *PostgresDirectory) load(ctx context.Context) ([]Advisor, error) {
	const query = `SELECT advisor_id, name, COALESCE(crm_user_id, '') FROM advisors ORDER BY advisor_id`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var advisors []Advisor
	for rows.Next() {
		var a Advisor
		if err := rows.Scan(&a.ID, &a.Name, &a.CRMUserID); err != nil {
			return nil, err
		}
		advisors = append(advisors, a)
	}
	return advisors, rows.Err()
}
