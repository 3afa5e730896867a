// Package catalog is the narrow read surface over branch and food records.
// The records themselves are owned by the excluded catalog subsystem; the
// order pipeline only ever reads them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"canteen-system/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, address, is_active FROM branches WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []domain.Branch
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.IsActive); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (r *Repo) GetBranch(ctx context.Context, id int64) (domain.Branch, error) {
	var b domain.Branch
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, address, is_active FROM branches WHERE id = $1 AND is_active`, id,
	).Scan(&b.ID, &b.Name, &b.Address, &b.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Branch{}, domain.ErrBranchNotFound
	}
	if err != nil {
		return domain.Branch{}, fmt.Errorf("get branch %d: %w", id, err)
	}
	return b, nil
}

func (r *Repo) ListFoods(ctx context.Context, branchID int64) ([]domain.Food, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, branch_id, name, description, price, is_available
		 FROM foods WHERE branch_id = $1 AND is_available ORDER BY id`,
		branchID)
	if err != nil {
		return nil, fmt.Errorf("list foods: %w", err)
	}
	defer rows.Close()

	var foods []domain.Food
	for rows.Next() {
		var f domain.Food
		if err := rows.Scan(&f.ID, &f.BranchID, &f.Name, &f.Description, &f.Price, &f.IsAvailable); err != nil {
			return nil, fmt.Errorf("scan food: %w", err)
		}
		foods = append(foods, f)
	}
	return foods, rows.Err()
}
