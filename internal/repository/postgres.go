// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/vehicle-register-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заявка не найдена среди неудалённых.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateEngineNumber возвращается при нарушении уникальности номера двигателя.
	ErrDuplicateEngineNumber = errors.New("engine number already registered")
	// ErrDuplicateBoardNumber возвращается при нарушении уникальности номера пластины.
	ErrDuplicateBoardNumber = errors.New("board number already registered")
	// ErrVersionConflict возвращается, если запись была изменена после чтения
	// (несовпадение токена оптимистической блокировки).
	ErrVersionConflict = errors.New("order row version conflict")
)

const (
	engineUniqueIndex = "uq_orders_engine_number"
	boardUniqueIndex  = "uq_orders_board_number"
)

const orderColumns = `id, created_by_id, created_by_name, created_at,
	full_name, national_number, mother_name,
	car_name, model, year_of_manufacture, color, engine_number,
	board_number, status, status_changed_at, status_changed_by_id, status_changed_by_name,
	return_comment, modified_at, modified_by_id, modified_by_name,
	deleted_at, deleted_by_id, deleted_by_name, is_deleted, row_version`

// PostgresRepository предоставляет доступ к хранилищу заявок в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure или Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// uniqueViolation переводит нарушение уникального индекса в доменную ошибку.
// Индекс в БД — последний рубеж защиты: сервисные проверки существования выполняются
// до записи, но гонка двух конкурентных записей разрешается только здесь.
// Возвращает nil, если ошибка не связана с известными уникальными индексами.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case engineUniqueIndex:
		return ErrDuplicateEngineNumber
	case boardUniqueIndex:
		return ErrDuplicateBoardNumber
	}
	return nil
}

// Add сохраняет новую заявку.
func (r *PostgresRepository) Add(ctx context.Context, o *model.Order) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO orders (
				id, created_by_id, created_by_name, created_at,
				full_name, national_number, mother_name,
				car_name, model, year_of_manufacture, color, engine_number,
				board_number, status, return_comment
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			o.ID, o.CreatedByID, o.CreatedByName, o.CreatedAt,
			o.FullName, o.NationalNumber, o.MotherName,
			o.CarName, o.Model, o.YearOfManufacture, o.Color, o.EngineNumber,
			o.BoardNumber, string(o.Status), o.ReturnComment,
		)
		return err
	})
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("insert order: %w", err)
	}

	o.RowVersion = 1
	return nil
}

// Update обновляет заявку с проверкой токена оптимистической блокировки.
// Запись с несовпадающим row_version отклоняется с ErrVersionConflict.
func (r *PostgresRepository) Update(ctx context.Context, o *model.Order) error {
	var newVersion int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE orders SET
				full_name = $2, national_number = $3, mother_name = $4,
				car_name = $5, model = $6, year_of_manufacture = $7, color = $8, engine_number = $9,
				board_number = $10, status = $11,
				status_changed_at = $12, status_changed_by_id = $13, status_changed_by_name = $14,
				return_comment = $15,
				modified_at = $16, modified_by_id = $17, modified_by_name = $18,
				deleted_at = $19, deleted_by_id = $20, deleted_by_name = $21, is_deleted = $22,
				row_version = row_version + 1
			 WHERE id = $1 AND row_version = $23
			 RETURNING row_version`,
			o.ID,
			o.FullName, o.NationalNumber, o.MotherName,
			o.CarName, o.Model, o.YearOfManufacture, o.Color, o.EngineNumber,
			o.BoardNumber, string(o.Status),
			o.StatusChangedAt, o.StatusChangedByID, o.StatusChangedByName,
			o.ReturnComment,
			o.ModifiedAt, o.ModifiedByID, o.ModifiedByName,
			o.DeletedAt, o.DeletedByID, o.DeletedByName, o.IsDeleted,
			o.RowVersion,
		).Scan(&newVersion)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyMissedUpdate(ctx, o.ID)
		}
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update order: %w", err)
	}

	o.RowVersion = newVersion
	return nil
}

// classifyMissedUpdate различает отсутствие записи и конфликт версий.
func (r *PostgresRepository) classifyMissedUpdate(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1 AND NOT is_deleted)`,
		id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("classify missed update: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrVersionConflict
}

// GetByID возвращает неудалённую заявку по идентификатору.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND NOT is_deleted`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// GetByUser возвращает неудалённые заявки, созданные указанным пользователем.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE created_by_id = $1 AND NOT is_deleted
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders by user: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// GetByStatuses возвращает неудалённые заявки в любом из указанных статусов.
func (r *PostgresRepository) GetByStatuses(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = ANY($1) AND NOT is_deleted
		 ORDER BY created_at DESC`,
		values,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders by statuses: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// GetValidatorQueue возвращает очередь валидатора: новые заявки и возвращённые заявки,
// отредактированные после возврата, от самой старой смены статуса к новой.
func (r *PostgresRepository) GetValidatorQueue(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE NOT is_deleted
		   AND (status = $1
		        OR (status = $2 AND modified_at IS NOT NULL AND modified_at > status_changed_at))
		 ORDER BY COALESCE(status_changed_at, created_at)`,
		string(model.OrderStatusNew),
		string(model.OrderStatusReturned),
	)
	if err != nil {
		return nil, fmt.Errorf("select validator queue: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// EngineNumberExists проверяет занятость номера двигателя среди неудалённых заявок.
// Заявка excludeID (если не uuid.Nil) исключается из проверки.
func (r *PostgresRepository) EngineNumberExists(ctx context.Context, engineNumber string, excludeID uuid.UUID) (bool, error) {
	if strings.TrimSpace(engineNumber) == "" {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE engine_number = $1 AND NOT is_deleted AND id <> $2
		 )`,
		engineNumber, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("engine number exists: %w", err)
	}

	return exists, nil
}

// BoardNumberExists проверяет занятость номера пластины среди неудалённых заявок.
// Номер сравнивается точно: вызывающая сторона нормализует его заранее.
func (r *PostgresRepository) BoardNumberExists(ctx context.Context, boardNumber string, excludeID uuid.UUID) (bool, error) {
	if strings.TrimSpace(boardNumber) == "" {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE board_number = $1 AND NOT is_deleted AND id <> $2
		 )`,
		boardNumber, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("board number exists: %w", err)
	}

	return exists, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)

	err := row.Scan(
		&o.ID, &o.CreatedByID, &o.CreatedByName, &o.CreatedAt,
		&o.FullName, &o.NationalNumber, &o.MotherName,
		&o.CarName, &o.Model, &o.YearOfManufacture, &o.Color, &o.EngineNumber,
		&o.BoardNumber, &status, &o.StatusChangedAt, &o.StatusChangedByID, &o.StatusChangedByName,
		&o.ReturnComment, &o.ModifiedAt, &o.ModifiedByID, &o.ModifiedByName,
		&o.DeletedAt, &o.DeletedByID, &o.DeletedByName, &o.IsDeleted, &o.RowVersion,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
