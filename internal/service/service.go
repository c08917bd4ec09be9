// Package service реализует жизненный цикл заявок на регистрацию транспортных средств.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-register-system/internal/cache"
	"github.com/mmeshcher/vehicle-register-system/internal/model"
	"github.com/mmeshcher/vehicle-register-system/internal/repository"
	"github.com/mmeshcher/vehicle-register-system/internal/validation"
)

const (
	// TTL кеша одной заявки и списка заявок пользователя.
	orderCacheTTL      = 3 * time.Minute
	userOrdersCacheTTL = 2 * time.Minute

	// Пауза перед единственным повтором при конфликте версий.
	conflictRetryDelay = 50 * time.Millisecond
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Add(ctx context.Context, o *model.Order) error
	Update(ctx context.Context, o *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetByUser(ctx context.Context, userID string) ([]model.Order, error)
	GetByStatuses(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error)
	GetValidatorQueue(ctx context.Context) ([]model.Order, error)
	EngineNumberExists(ctx context.Context, engineNumber string, excludeID uuid.UUID) (bool, error)
	BoardNumberExists(ctx context.Context, boardNumber string, excludeID uuid.UUID) (bool, error)
}

// OrderFields содержит данные заявителя и транспортного средства,
// задаваемые при создании и редактировании заявки.
type OrderFields struct {
	FullName          string
	NationalNumber    string
	MotherName        string
	CarName           string
	Model             string
	YearOfManufacture int
	Color             string
	EngineNumber      string
}

// Service реализует конечный автомат жизненного цикла заявки.
type Service struct {
	repo   Repository
	cache  cache.Store
	logger *zap.Logger
}

// NewService создаёт сервис с указанным репозиторием и кеш-хранилищем.
func NewService(repo Repository, store cache.Store, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  store,
		logger: logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func orderCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("order_%s", id)
}

func userOrdersCacheKey(userID string) string {
	return fmt.Sprintf("user_orders_%s", userID)
}

// Create создаёт заявку в статусе Draft от имени указанного пользователя.
func (s *Service) Create(ctx context.Context, fields OrderFields, actor model.Actor) (*model.Order, error) {
	exists, err := s.repo.EngineNumberExists(ctx, fields.EngineNumber, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("check engine number: %w", err)
	}
	if exists {
		return nil, newError(CodeDuplicateEngine, "engine number already registered")
	}

	if verr := validateFields(fields); verr != nil {
		return nil, verr
	}

	order := &model.Order{
		ID:                uuid.New(),
		CreatedByID:       actor.ID,
		CreatedByName:     actor.Name,
		CreatedAt:         time.Now().UTC(),
		FullName:          fields.FullName,
		NationalNumber:    fields.NationalNumber,
		MotherName:        fields.MotherName,
		CarName:           fields.CarName,
		Model:             fields.Model,
		YearOfManufacture: fields.YearOfManufacture,
		Color:             fields.Color,
		EngineNumber:      fields.EngineNumber,
		Status:            model.OrderStatusDraft,
	}

	if err := s.repo.Add(ctx, order); err != nil {
		return nil, s.translate(err)
	}

	if err := s.invalidate(ctx, order.ID, order.CreatedByID); err != nil {
		return nil, err
	}

	return order, nil
}

func validateFields(fields OrderFields) *ValidationError {
	var messages []string
	if fields.FullName == "" {
		messages = append(messages, "full name is required")
	}
	if fields.NationalNumber == "" {
		messages = append(messages, "national number is required")
	}
	if fields.CarName == "" {
		messages = append(messages, "car name is required")
	}
	if fields.Model == "" {
		messages = append(messages, "model is required")
	}
	if fields.YearOfManufacture <= 0 {
		messages = append(messages, "year of manufacture must be positive")
	}

	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}

// Edit перезаписывает данные заявителя и транспортного средства.
// Допускается только для заявок в статусах New и Returned; статус не меняется.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, fields OrderFields, actor model.Actor) (*model.Order, error) {
	return s.mutate(ctx, id, func(o *model.Order) error {
		if o.Status != model.OrderStatusNew && o.Status != model.OrderStatusReturned {
			return newError(CodeInvalidStatus, "order cannot be edited in its current status")
		}

		exists, err := s.repo.EngineNumberExists(ctx, fields.EngineNumber, o.ID)
		if err != nil {
			return fmt.Errorf("check engine number: %w", err)
		}
		if exists {
			return newError(CodeDuplicateEngine, "engine number already registered")
		}

		now := time.Now().UTC()
		o.FullName = fields.FullName
		o.NationalNumber = fields.NationalNumber
		o.MotherName = fields.MotherName
		o.CarName = fields.CarName
		o.Model = fields.Model
		o.YearOfManufacture = fields.YearOfManufacture
		o.Color = fields.Color
		o.EngineNumber = fields.EngineNumber
		o.ModifiedAt = &now
		o.ModifiedByID = actor.ID
		o.ModifiedByName = actor.Name

		return nil
	})
}

// Delete помечает заявку удалённой. Удалить можно только черновик.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	_, err := s.mutate(ctx, id, func(o *model.Order) error {
		if o.Status != model.OrderStatusDraft {
			return &ValidationError{Messages: []string{"only draft orders can be deleted"}}
		}

		now := time.Now().UTC()
		o.IsDeleted = true
		o.DeletedAt = &now
		o.DeletedByID = actor.ID
		o.DeletedByName = actor.Name

		return nil
	})
	return err
}

// Submit переводит черновик в статус New для проверки валидатором.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	_, err := s.mutate(ctx, id, func(o *model.Order) error {
		if !model.CanTransition(o.Status, model.OrderStatusNew) {
			return newError(CodeInvalidStatus, "order cannot be submitted in its current status")
		}

		o.Status = model.OrderStatusNew
		stampStatusChange(o, actor)
		return nil
	})
	return err
}

// ReturnToUser возвращает заявку заявителю с обязательным комментарием.
// Повторный возврат перезаписывает предыдущий комментарий.
func (s *Service) ReturnToUser(ctx context.Context, id uuid.UUID, actor model.Actor, comment string) error {
	_, err := s.mutate(ctx, id, func(o *model.Order) error {
		if !model.CanTransition(o.Status, model.OrderStatusReturned) {
			return newError(CodeInvalidStatus, "order cannot be returned in its current status")
		}
		if comment == "" {
			return newError(CodeMissingComment, "return comment is required")
		}

		o.Status = model.OrderStatusReturned
		o.ReturnComment = comment
		stampStatusChange(o, actor)
		return nil
	})
	return err
}

// SetInProgress принимает заявку в работу после проверки валидатором.
func (s *Service) SetInProgress(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	_, err := s.mutate(ctx, id, func(o *model.Order) error {
		if !model.CanTransition(o.Status, model.OrderStatusInProgress) {
			return newError(CodeInvalidStatus, "order cannot be set in progress in its current status")
		}

		exists, err := s.repo.EngineNumberExists(ctx, o.EngineNumber, o.ID)
		if err != nil {
			return fmt.Errorf("check engine number: %w", err)
		}
		if exists {
			return newError(CodeDuplicateEngine, "engine number already registered")
		}

		if o.CarName == "" || o.Model == "" || o.YearOfManufacture <= 0 {
			return newError(CodeMissingData, "vehicle data is incomplete")
		}

		o.Status = model.OrderStatusInProgress
		stampStatusChange(o, actor)
		return nil
	})
	return err
}

// RegisterBoard присваивает заявке номер пластины и завершает её со статусом Approved.
func (s *Service) RegisterBoard(ctx context.Context, id uuid.UUID, boardNumber string, actor model.Actor) error {
	_, err := s.mutate(ctx, id, func(o *model.Order) error {
		if !model.CanTransition(o.Status, model.OrderStatusApproved) {
			return newError(CodeInvalidStatus, "order is not in progress")
		}

		normalized := validation.NormalizeBoardNumber(boardNumber)
		if !validation.IsValidBoardNumber(normalized) {
			return newError(CodeInvalidFormat, "board number must contain only uppercase letters and digits, with at least one letter")
		}

		exists, err := s.repo.BoardNumberExists(ctx, normalized, o.ID)
		if err != nil {
			return fmt.Errorf("check board number: %w", err)
		}
		if exists {
			return newError(CodeDuplicateBoard, "board number already registered")
		}

		o.BoardNumber = normalized
		o.Status = model.OrderStatusApproved
		stampStatusChange(o, actor)
		return nil
	})
	return err
}

func stampStatusChange(o *model.Order, actor model.Actor) {
	now := time.Now().UTC()
	o.StatusChangedAt = &now
	o.StatusChangedByID = actor.ID
	o.StatusChangedByName = actor.Name
}

// GetByID возвращает заявку по идентификатору, используя кеш сквозного чтения.
// Отсутствующая заявка не кешируется, чтобы не скрыть только что созданную.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	key := orderCacheKey(id)

	if cached := s.cacheGet(ctx, key); cached != nil {
		var o model.Order
		if err := json.Unmarshal(cached, &o); err == nil {
			return &o, nil
		}
		s.logger.Warn("corrupted cache entry", zap.String("key", key))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}

	s.cacheSet(ctx, key, order, orderCacheTTL)
	return order, nil
}

// GetForUser возвращает заявки пользователя в статусах Draft, Returned и Approved.
// Заявки в New и InProgress принадлежат очереди проверяющих и сюда не попадают.
func (s *Service) GetForUser(ctx context.Context, userID string) ([]model.Order, error) {
	key := userOrdersCacheKey(userID)

	if cached := s.cacheGet(ctx, key); cached != nil {
		var orders []model.Order
		if err := json.Unmarshal(cached, &orders); err == nil {
			return orders, nil
		}
		s.logger.Warn("corrupted cache entry", zap.String("key", key))
	}

	all, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get orders for user: %w", err)
	}

	orders := make([]model.Order, 0, len(all))
	for _, o := range all {
		switch o.Status {
		case model.OrderStatusDraft, model.OrderStatusReturned, model.OrderStatusApproved:
			orders = append(orders, o)
		}
	}

	s.cacheSet(ctx, key, orders, userOrdersCacheTTL)
	return orders, nil
}

// GetByStatuses возвращает заявки в любом из указанных статусов.
func (s *Service) GetByStatuses(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	orders, err := s.repo.GetByStatuses(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("get orders by statuses: %w", err)
	}
	return orders, nil
}

// GetValidatorQueue возвращает очередь валидатора: новые заявки и возвращённые,
// отредактированные после возврата, начиная с самой давней смены статуса.
func (s *Service) GetValidatorQueue(ctx context.Context) ([]model.Order, error) {
	orders, err := s.repo.GetValidatorQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("get validator queue: %w", err)
	}
	return orders, nil
}

// mutate загружает заявку, применяет переход и сохраняет результат.
// При конфликте версий заявка перечитывается и переход повторяется один раз.
// После успешной записи обе затронутые кеш-записи удаляются до возврата результата.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, apply func(o *model.Order) error) (*model.Order, error) {
	var updated *model.Order

	backoff := retry.WithMaxRetries(1, retry.NewConstant(conflictRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := apply(order); err != nil {
			return err
		}

		if err := s.repo.Update(ctx, order); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, s.translate(err)
	}

	if err := s.invalidate(ctx, updated.ID, updated.CreatedByID); err != nil {
		return nil, err
	}

	return updated, nil
}

// invalidate синхронно удаляет кеш-записи заявки и списка заявок её создателя.
// Ошибка инвалидации — ошибка операции: устаревшее чтение хуже медленного.
func (s *Service) invalidate(ctx context.Context, orderID uuid.UUID, createdByID string) error {
	if err := s.cache.Delete(ctx, orderCacheKey(orderID), userOrdersCacheKey(createdByID)); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

func (s *Service) cacheGet(ctx context.Context, key string) []byte {
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	return value
}

func (s *Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// translate переводит ошибки репозитория в бизнес-ошибки со стабильными кодами.
// Бизнес-ошибки проходят без изменений, всё остальное считается инфраструктурным сбоем.
func (s *Service) translate(err error) error {
	var businessErr *Error
	if errors.As(err, &businessErr) {
		return businessErr
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return newError(CodeOrderNotFound, "order not found")
	case errors.Is(err, repository.ErrDuplicateEngineNumber):
		return newError(CodeDuplicateEngine, "engine number already registered")
	case errors.Is(err, repository.ErrDuplicateBoardNumber):
		return newError(CodeDuplicateBoard, "board number already registered")
	case errors.Is(err, repository.ErrVersionConflict):
		return newError(CodeVersionConflict, "order was modified concurrently, please retry")
	}

	return err
}
