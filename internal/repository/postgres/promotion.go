package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/repository"
	"github.com/utafrali/BackOfficeGo/pkg/database"
	apperrors "github.com/utafrali/BackOfficeGo/pkg/errors"
	"github.com/utafrali/BackOfficeGo/pkg/pagination"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const promotionColumns = `id, code, name, description, discount, is_active, is_stackable, priority,
	start_date, end_date, time_start, time_end, days_of_week,
	min_purchase_amount, min_quantity, max_uses_total, current_usage,
	applicable_products, applicable_categories, created_at, updated_at`

const (
	incrementUsageSQL = `
		UPDATE promotions
		SET current_usage = current_usage + 1, updated_at = NOW()
		WHERE id = $1 AND (max_uses_total IS NULL OR current_usage < max_uses_total)`

	promotionExistsSQL = `SELECT EXISTS(SELECT 1 FROM promotions WHERE id = $1)`

	insertUsageSQL = `
		INSERT INTO promotion_usages (id, promotion_id, customer_id, order_id, discount_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// PromotionRepository implements repository.PromotionRepository and
// repository.CatalogProvider using PostgreSQL.
type PromotionRepository struct {
	db database.DBTX
}

// NewPromotionRepository creates a new PostgreSQL-backed promotion repository.
func NewPromotionRepository(db database.DBTX) *PromotionRepository {
	return &PromotionRepository{db: db}
}

var (
	_ repository.PromotionRepository = (*PromotionRepository)(nil)
	_ repository.CatalogProvider     = (*PromotionRepository)(nil)
)

// Create inserts a new promotion into the database.
func (r *PromotionRepository) Create(ctx context.Context, p *domain.PromotionDefinition) (err error) {
	cols, err := encodeColumns(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	ctx, end := database.TraceQuery(ctx, "CreatePromotion", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.Code,
		p.Name,
		p.Description,
		cols.discount,
		p.IsActive,
		p.IsStackable,
		p.Priority,
		p.StartDate,
		p.EndDate,
		p.TimeStart,
		p.TimeEnd,
		cols.days,
		p.MinPurchaseAmount,
		p.MinQuantity,
		p.MaxUsesTotal,
		p.CurrentUsage,
		cols.products,
		cols.categories,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "code", p.Code)
		}
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

// GetByID retrieves a promotion by its ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (p *domain.PromotionDefinition, err error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetPromotionByID", query)
	defer func() { end(err) }()

	p, err = scanPromotion(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("promotion", id)
	}
	return p, err
}

// GetByCode retrieves a promotion by its code.
func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (p *domain.PromotionDefinition, err error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE code = $1`

	ctx, end := database.TraceQuery(ctx, "GetPromotionByCode", query)
	defer func() { end(err) }()

	code = domain.NormalizeCode(code)
	p, err = scanPromotion(r.db.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("promotion", code)
	}
	return p, err
}

// List returns promotions matching the given filter with the total count.
func (r *PromotionRepository) List(ctx context.Context, filter repository.PromotionFilter) (_ []domain.PromotionDefinition, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *filter.Active)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM promotions
		%s
		ORDER BY priority DESC, name ASC
		LIMIT $%d OFFSET $%d`,
		promotionColumns, whereClause, argIndex, argIndex+1,
	)

	page := pagination.New(filter.Page, filter.PerPage)
	args = append(args, page.PerPage, page.Offset())

	ctx, end := database.TraceQuery(ctx, "ListPromotions", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var (
		promotions = []domain.PromotionDefinition{}
		totalCount int
	)
	for rows.Next() {
		p, err := scanPromotion(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		promotions = append(promotions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate promotion rows: %w", err)
	}

	return promotions, totalCount, nil
}

// ListCatalog returns every promotion, targets included, in one query. The
// engine filters by eligibility itself, so inactive rows are returned too.
func (r *PromotionRepository) ListCatalog(ctx context.Context) (_ []domain.PromotionDefinition, err error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions ORDER BY priority DESC, name ASC`

	ctx, end := database.TraceQuery(ctx, "ListPromotionCatalog", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list promotion catalog: %w", err)
	}
	defer rows.Close()

	catalog := []domain.PromotionDefinition{}
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion catalog: %w", err)
	}
	return catalog, nil
}

// Update modifies an existing promotion in the database.
func (r *PromotionRepository) Update(ctx context.Context, p *domain.PromotionDefinition) (err error) {
	cols, err := encodeColumns(p)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE promotions
		SET code = $1, name = $2, description = $3, discount = $4, is_active = $5,
		    is_stackable = $6, priority = $7, start_date = $8, end_date = $9,
		    time_start = $10, time_end = $11, days_of_week = $12,
		    min_purchase_amount = $13, min_quantity = $14, max_uses_total = $15,
		    applicable_products = $16, applicable_categories = $17, updated_at = $18
		WHERE id = $19`

	ctx, end := database.TraceQuery(ctx, "UpdatePromotion", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		p.Code,
		p.Name,
		p.Description,
		cols.discount,
		p.IsActive,
		p.IsStackable,
		p.Priority,
		p.StartDate,
		p.EndDate,
		p.TimeStart,
		p.TimeEnd,
		cols.days,
		p.MinPurchaseAmount,
		p.MinQuantity,
		p.MaxUsesTotal,
		cols.products,
		cols.categories,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "code", p.Code)
		}
		return fmt.Errorf("update promotion: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("promotion", p.ID)
	}
	return nil
}

// RecordUsage consumes one use of the promotion and writes the audit row in
// one transaction. The conditional UPDATE is the only guard against two
// orders redeeming the last use of a capped promotion concurrently.
func (r *PromotionRepository) RecordUsage(ctx context.Context, u *domain.PromotionUsage) (err error) {
	ctx, end := database.TraceQuery(ctx, "RecordPromotionUsage", incrementUsageSQL)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin usage transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ct, err := tx.Exec(ctx, incrementUsageSQL, u.PromotionID)
	if err != nil {
		return fmt.Errorf("increment promotion usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, promotionExistsSQL, u.PromotionID).Scan(&exists); err != nil {
			return fmt.Errorf("check promotion exists: %w", err)
		}
		if !exists {
			return apperrors.NotFound("promotion", u.PromotionID)
		}
		return apperrors.Conflict("USAGE_LIMIT_REACHED", "promotion usage limit reached", domain.ErrUsageLimitReached)
	}

	_, err = tx.Exec(ctx, insertUsageSQL,
		u.ID,
		u.PromotionID,
		u.CustomerID,
		u.OrderID,
		u.DiscountAmount,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion usage", "order_id", u.OrderID)
		}
		return fmt.Errorf("insert promotion usage: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit usage transaction: %w", err)
	}
	return nil
}

// ListUsages returns the usage audit rows of a promotion, newest first.
func (r *PromotionRepository) ListUsages(ctx context.Context, promotionID string, page, perPage int) (_ []domain.PromotionUsage, _ int, err error) {
	query := `
		SELECT id, promotion_id, customer_id, order_id, discount_amount, created_at,
		       count(*) OVER() AS total_count
		FROM promotion_usages
		WHERE promotion_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	p := pagination.New(page, perPage)

	ctx, end := database.TraceQuery(ctx, "ListPromotionUsages", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, promotionID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list promotion usages: %w", err)
	}
	defer rows.Close()

	var (
		usages     = []domain.PromotionUsage{}
		totalCount int
	)
	for rows.Next() {
		var u domain.PromotionUsage
		if err := rows.Scan(
			&u.ID,
			&u.PromotionID,
			&u.CustomerID,
			&u.OrderID,
			&u.DiscountAmount,
			&u.CreatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan promotion usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate promotion usage rows: %w", err)
	}
	return usages, totalCount, nil
}

type jsonColumns struct {
	discount   []byte
	days       []byte
	products   []byte
	categories []byte
}

func encodeColumns(p *domain.PromotionDefinition) (jsonColumns, error) {
	var (
		cols jsonColumns
		err  error
	)
	if cols.discount, err = json.Marshal(domain.ParamsOf(p.Model)); err != nil {
		return cols, fmt.Errorf("marshal discount: %w", err)
	}
	days := p.DaysOfWeek
	if days == nil {
		days = []time.Weekday{}
	}
	if cols.days, err = json.Marshal(days); err != nil {
		return cols, fmt.Errorf("marshal days_of_week: %w", err)
	}
	if cols.products, err = json.Marshal(nonNil(p.ApplicableProducts)); err != nil {
		return cols, fmt.Errorf("marshal applicable_products: %w", err)
	}
	if cols.categories, err = json.Marshal(nonNil(p.ApplicableCategories)); err != nil {
		return cols, fmt.Errorf("marshal applicable_categories: %w", err)
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanPromotion reads one promotion row. Extra destinations are scanned after
// the promotion columns. pgx.ErrNoRows is returned unwrapped.
func scanPromotion(row rowScanner, extra ...any) (*domain.PromotionDefinition, error) {
	var (
		p              domain.PromotionDefinition
		discountJSON   []byte
		daysJSON       []byte
		productsJSON   []byte
		categoriesJSON []byte
	)

	dest := []any{
		&p.ID,
		&p.Code,
		&p.Name,
		&p.Description,
		&discountJSON,
		&p.IsActive,
		&p.IsStackable,
		&p.Priority,
		&p.StartDate,
		&p.EndDate,
		&p.TimeStart,
		&p.TimeEnd,
		&daysJSON,
		&p.MinPurchaseAmount,
		&p.MinQuantity,
		&p.MaxUsesTotal,
		&p.CurrentUsage,
		&productsJSON,
		&categoriesJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan promotion: %w", err)
	}

	var params domain.DiscountParams
	if err := json.Unmarshal(discountJSON, &params); err != nil {
		return nil, fmt.Errorf("unmarshal discount: %w", err)
	}
	model, err := params.Model()
	if err != nil {
		return nil, fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	p.Model = model

	if err := unmarshalArray(daysJSON, &p.DaysOfWeek, "days_of_week"); err != nil {
		return nil, err
	}
	if err := unmarshalArray(productsJSON, &p.ApplicableProducts, "applicable_products"); err != nil {
		return nil, err
	}
	if err := unmarshalArray(categoriesJSON, &p.ApplicableCategories, "applicable_categories"); err != nil {
		return nil, err
	}
	if p.ApplicableProducts == nil {
		p.ApplicableProducts = []string{}
	}
	if p.ApplicableCategories == nil {
		p.ApplicableCategories = []string{}
	}
	return &p, nil
}

func unmarshalArray[T any](data []byte, dst *[]T, column string) error {
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", column, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isUniqueViolation checks for SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
