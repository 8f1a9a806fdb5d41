package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/logging"
	"kasirinaja/checkout/internal/store"
	"kasirinaja/checkout/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const productColumns = `id, name, COALESCE(barcode, ''), price, vat_rate, stock, min_stock, active`

const promotionColumns = `id, name, type, conditions, active, customer_type, schedule, priority, created_at`

type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func New(ctx context.Context, databaseURL string, logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, errs.Wrap(err, "open postgres")
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(err, "ping postgres")
	}

	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{db: db, logger: logger.WithField("component", "postgres")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the catalog and promotion tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errs.Wrap(err, "apply schema")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.VATRate, &p.Stock, &p.MinStock, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, errs.Wrap(err, "list products")
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errs.Wrap(err, "scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, "list products")
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrapf(store.ErrNotFound, "product %s", id)
		}
		return nil, errs.Wrapf(err, "get product %s", id)
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errs.Wrap(err, "get products")
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errs.Wrap(err, "scan product")
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, "get products")
	}
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.Price.IsNegative() {
		return nil, errs.Newf("invalid product %q", product.ID)
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, barcode, price, vat_rate, stock, min_stock, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			barcode = EXCLUDED.barcode,
			price = EXCLUDED.price,
			vat_rate = EXCLUDED.vat_rate,
			stock = EXCLUDED.stock,
			min_stock = EXCLUDED.min_stock,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+productColumns,
		product.ID, product.Name, nullIfEmpty(product.Barcode), product.Price, product.VATRate,
		product.Stock, product.MinStock, product.Active,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Wrapf(store.ErrDuplicateBarcode, "barcode %s", product.Barcode)
		}
		return nil, errs.Wrapf(err, "upsert product %s", product.ID)
	}
	return &p, nil
}

func (s *Store) FindProductByBarcode(ctx context.Context, digits string) (*domain.Product, error) {
	digits = strings.TrimSpace(digits)
	if digits == "" {
		return nil, errs.Wrap(store.ErrNotFound, "empty barcode")
	}

	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, COALESCE(p.barcode, ''), p.price, p.vat_rate, p.stock, p.min_stock, p.active
		FROM barcode_aliases a
		JOIN products p ON p.id = a.product_id
		WHERE a.barcode = lower($1)
	`, digits))
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrapf(err, "find alias %s", digits)
	}

	p, err = scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE lower(barcode) = lower($1)`, digits))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrapf(store.ErrNotFound, "barcode %s", digits)
		}
		return nil, errs.Wrapf(err, "find barcode %s", digits)
	}
	return &p, nil
}

func (s *Store) AddBarcodeAlias(ctx context.Context, alias domain.BarcodeAlias) error {
	barcode := strings.ToLower(strings.TrimSpace(alias.Barcode))
	if barcode == "" {
		return errs.New("alias barcode is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO barcode_aliases (barcode, product_id, created_at)
		SELECT $1, id, now() FROM products WHERE id = $2
		ON CONFLICT (barcode) DO UPDATE SET product_id = EXCLUDED.product_id
		WHERE barcode_aliases.product_id = EXCLUDED.product_id
	`, barcode, alias.ProductID)
	if err != nil {
		return errs.Wrapf(err, "add alias %s", barcode)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(err, "add alias")
	}
	if affected > 0 {
		return nil
	}

	// Nothing written: either the product is missing or the alias belongs
	// to another product.
	if _, err := s.GetProduct(ctx, alias.ProductID); err != nil {
		return err
	}
	return errs.Wrapf(store.ErrDuplicateBarcode, "alias %s", barcode)
}

func (s *Store) ListBarcodeAliases(ctx context.Context, productID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT barcode FROM barcode_aliases WHERE product_id = $1 ORDER BY barcode
	`, productID)
	if err != nil {
		return nil, errs.Wrapf(err, "list aliases for %s", productID)
	}
	defer rows.Close()

	out := make([]string, 0, 2)
	for rows.Next() {
		var barcode string
		if err := rows.Scan(&barcode); err != nil {
			return nil, errs.Wrap(err, "scan alias")
		}
		out = append(out, barcode)
	}
	return out, rows.Err()
}

func (s *Store) scanPromotion(row rowScanner) (domain.Promotion, error) {
	var (
		p          domain.Promotion
		conditions []byte
		schedule   []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &conditions, &p.Active, &p.CustomerType, &schedule, &p.Priority, &p.CreatedAt); err != nil {
		return domain.Promotion{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()

	log := s.logger.WithFields(logrus.Fields{"promotion_id": p.ID, "type": p.Type})
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &p.Schedule); err != nil {
			// An unreadable schedule must not widen eligibility.
			log.WithError(err).Warn("promotion schedule unreadable; disabling")
			p.Active = false
		}
	}
	cond, err := domain.DecodeConditions(p.Type, conditions)
	if err != nil {
		log.WithError(err).Warn("promotion conditions inconsistent; it will never match")
	}
	p.Conditions = cond
	return p, nil
}

func (s *Store) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promotionColumns+`
		FROM promotions
		ORDER BY priority DESC, created_at DESC, id
	`)
	if err != nil {
		return nil, errs.Wrap(err, "list promotions")
	}
	defer rows.Close()

	promos := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		p, err := s.scanPromotion(rows)
		if err != nil {
			return nil, errs.Wrap(err, "scan promotion")
		}
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, "list promotions")
	}
	return promos, nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	promo.Name = strings.TrimSpace(promo.Name)
	if promo.Name == "" || !promo.Type.Valid() {
		return nil, store.ErrInvalidPromotion
	}
	if promo.Conditions == nil || promo.Conditions.PromotionType() != promo.Type {
		return nil, store.ErrInvalidPromotion
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	if promo.CustomerType == "" {
		promo.CustomerType = domain.CustomerAll
	}
	if promo.Schedule.Type == "" {
		promo.Schedule.Type = domain.ScheduleAlways
	}

	conditions, err := domain.EncodeConditions(promo.Conditions)
	if err != nil {
		return nil, errs.Wrap(err, "encode conditions")
	}
	schedule, err := json.Marshal(promo.Schedule)
	if err != nil {
		return nil, errs.Wrap(err, "encode schedule")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO promotions (
			id, name, type, conditions, active, customer_type, schedule, priority, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7::jsonb, $8, $9, now())
	`, promo.ID, promo.Name, promo.Type, string(conditions), promo.Active, promo.CustomerType, string(schedule), promo.Priority, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Wrapf(store.ErrInvalidPromotion, "promotion %s already exists", promo.ID)
		}
		return nil, errs.Wrap(err, "create promotion")
	}
	saved := promo
	return &saved, nil
}

func (s *Store) SetPromotionActive(ctx context.Context, id string, active bool) (*domain.Promotion, error) {
	p, err := s.scanPromotion(s.db.QueryRowContext(ctx, `
		UPDATE promotions
		SET active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+promotionColumns, id, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrapf(store.ErrNotFound, "promotion %s", id)
		}
		return nil, errs.Wrapf(err, "set promotion %s active", id)
	}
	return &p, nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta decimal.Decimal) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, productID, delta))
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrapf(err, "adjust stock %s", productID)
	}

	if _, getErr := s.GetProduct(ctx, productID); getErr != nil {
		return nil, getErr
	}
	return nil, errs.Wrapf(store.ErrInsufficientStock, "product %s", productID)
}

// ApplyStockChanges runs every guarded update in one transaction. Rows are
// touched in product ID order so concurrent batches lock in the same order.
func (s *Store) ApplyStockChanges(ctx context.Context, changes []store.StockChange) error {
	ordered := slices.Clone(changes)
	slices.SortStableFunc(ordered, func(a, b store.StockChange) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errs.Wrap(err, "begin stock batch")
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range ordered {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1 AND stock + $2 >= 0
		`, c.ProductID, c.Delta)
		if err != nil {
			return errs.Wrapf(err, "adjust stock %s", c.ProductID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errs.Wrap(err, "adjust stock")
		}
		if affected > 0 {
			continue
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, c.ProductID).Scan(&exists); err != nil {
			return errs.Wrapf(err, "check product %s", c.ProductID)
		}
		if !exists {
			return errs.Wrapf(store.ErrNotFound, "product %s", c.ProductID)
		}
		return errs.Wrapf(store.ErrInsufficientStock, "product %s", c.ProductID)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(err, "commit stock batch")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
