// Package handler содержит HTTP-обработчики API системы регистрации транспортных средств.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-register-system/internal/authz"
	"github.com/mmeshcher/vehicle-register-system/internal/middleware"
	"github.com/mmeshcher/vehicle-register-system/internal/model"
	"github.com/mmeshcher/vehicle-register-system/internal/service"
)

// Service определяет контракт жизненного цикла заявок, используемый HTTP-обработчиками.
type Service interface {
	Create(ctx context.Context, fields service.OrderFields, actor model.Actor) (*model.Order, error)
	Edit(ctx context.Context, id uuid.UUID, fields service.OrderFields, actor model.Actor) (*model.Order, error)
	Delete(ctx context.Context, id uuid.UUID, actor model.Actor) error
	Submit(ctx context.Context, id uuid.UUID, actor model.Actor) error
	ReturnToUser(ctx context.Context, id uuid.UUID, actor model.Actor, comment string) error
	SetInProgress(ctx context.Context, id uuid.UUID, actor model.Actor) error
	RegisterBoard(ctx context.Context, id uuid.UUID, boardNumber string, actor model.Actor) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetForUser(ctx context.Context, userID string) ([]model.Order, error)
	GetByStatuses(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error)
	GetValidatorQueue(ctx context.Context) ([]model.Order, error)
}

// Handler реализует HTTP-обработчики API заявок.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type orderFieldsRequest struct {
	FullName          string `json:"full_name"`
	NationalNumber    string `json:"national_number"`
	MotherName        string `json:"mother_name"`
	CarName           string `json:"car_name"`
	Model             string `json:"model"`
	YearOfManufacture int    `json:"year_of_manufacture"`
	Color             string `json:"color"`
	EngineNumber      string `json:"engine_number"`
}

func (r orderFieldsRequest) toFields() service.OrderFields {
	return service.OrderFields{
		FullName:          r.FullName,
		NationalNumber:    r.NationalNumber,
		MotherName:        r.MotherName,
		CarName:           r.CarName,
		Model:             r.Model,
		YearOfManufacture: r.YearOfManufacture,
		Color:             r.Color,
		EngineNumber:      r.EngineNumber,
	}
}

type orderResponse struct {
	ID                string  `json:"id"`
	CreatedByID       string  `json:"created_by_id"`
	CreatedByName     string  `json:"created_by_name"`
	CreatedAt         string  `json:"created_at"`
	FullName          string  `json:"full_name"`
	NationalNumber    string  `json:"national_number"`
	MotherName        string  `json:"mother_name,omitempty"`
	CarName           string  `json:"car_name"`
	Model             string  `json:"model"`
	YearOfManufacture int     `json:"year_of_manufacture"`
	Color             string  `json:"color,omitempty"`
	EngineNumber      string  `json:"engine_number"`
	BoardNumber       string  `json:"board_number,omitempty"`
	Status            string  `json:"status"`
	StatusChangedAt   *string `json:"status_changed_at,omitempty"`
	ReturnComment     string  `json:"return_comment,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:                o.ID.String(),
		CreatedByID:       o.CreatedByID,
		CreatedByName:     o.CreatedByName,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
		FullName:          o.FullName,
		NationalNumber:    o.NationalNumber,
		MotherName:        o.MotherName,
		CarName:           o.CarName,
		Model:             o.Model,
		YearOfManufacture: o.YearOfManufacture,
		Color:             o.Color,
		EngineNumber:      o.EngineNumber,
		BoardNumber:       o.BoardNumber,
		Status:            string(o.Status),
		ReturnComment:     o.ReturnComment,
	}
	if o.StatusChangedAt != nil {
		v := o.StatusChangedAt.Format(time.RFC3339)
		resp.StatusChangedAt = &v
	}
	return resp
}

type errorResponse struct {
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"validation_errors,omitempty"`
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Обработчики ветвятся по стабильному коду, текст сообщения — только для человека.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Errors: validationErr.Messages})
		return
	}

	var businessErr *service.Error
	if errors.As(err, &businessErr) {
		var status int
		switch businessErr.Code {
		case service.CodeOrderNotFound:
			status = http.StatusNotFound
		case service.CodeInvalidStatus, service.CodeDuplicateEngine,
			service.CodeDuplicateBoard, service.CodeVersionConflict:
			status = http.StatusConflict
		case service.CodeMissingComment, service.CodeMissingData, service.CodeInvalidFormat:
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Code: businessErr.Code, Message: businessErr.Message})
		return
	}

	// Инфраструктурный сбой: подробности в лог, наружу — непрозрачная ошибка.
	h.logger.Error("order operation error", zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func orderIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func actorFromRequest(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return model.Actor{}, false
	}
	return actor, true
}

// ensureOwner проверяет, что заявка принадлежит текущему пользователю.
// Администратор может выполнять операции заявителя над любой заявкой.
func (h *Handler) ensureOwner(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor model.Actor) bool {
	order, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return false
	}

	if order.CreatedByID == actor.ID {
		return true
	}

	if roles, ok := middleware.GetRolesFromContext(r.Context()); ok && authz.AnyAllowed(roles, authz.OpViewByStatuses) {
		return true
	}

	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	return false
}

// CreateOrder создаёт черновик заявки от имени текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req orderFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.Create(r.Context(), req.toFields(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// EditOrder перезаписывает данные заявки текущего пользователя.
func (h *Handler) EditOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.ensureOwner(w, r, id, actor) {
		return
	}

	var req orderFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.Edit(r.Context(), id, req.toFields(), actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// DeleteOrder помечает черновик заявки удалённым.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.ensureOwner(w, r, id, actor) {
		return
	}

	if err := h.service.Delete(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitOrder переводит черновик заявки в статус New.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.ensureOwner(w, r, id, actor) {
		return
	}

	if err := h.service.Submit(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetOrder возвращает заявку по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetMyOrders возвращает заявки текущего пользователя в статусах Draft, Returned и Approved.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetForUser(r.Context(), actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeOrderList(w, orders)
}

// GetValidatorQueue возвращает очередь валидатора.
func (h *Handler) GetValidatorQueue(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetValidatorQueue(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeOrderList(w, orders)
}

var knownStatuses = map[string]model.OrderStatus{
	string(model.OrderStatusDraft):      model.OrderStatusDraft,
	string(model.OrderStatusNew):        model.OrderStatusNew,
	string(model.OrderStatusReturned):   model.OrderStatusReturned,
	string(model.OrderStatusInProgress): model.OrderStatusInProgress,
	string(model.OrderStatusApproved):   model.OrderStatusApproved,
}

// GetByStatuses возвращает заявки в статусах из query-параметра status.
func (h *Handler) GetByStatuses(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()["status"]
	if len(values) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	statuses := make([]model.OrderStatus, 0, len(values))
	for _, v := range values {
		status, ok := knownStatuses[v]
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		statuses = append(statuses, status)
	}

	orders, err := h.service.GetByStatuses(r.Context(), statuses)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeOrderList(w, orders)
}

type returnRequest struct {
	Comment string `json:"comment"`
}

// ReturnOrder возвращает заявку заявителю с комментарием валидатора.
func (h *Handler) ReturnOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ReturnToUser(r.Context(), id, actor, req.Comment); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// SetInProgress принимает заявку в работу.
func (h *Handler) SetInProgress(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetInProgress(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type registerBoardRequest struct {
	BoardNumber string `json:"board_number"`
}

// RegisterBoard присваивает заявке номер пластины и завершает регистрацию.
func (h *Handler) RegisterBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, ok := orderIDFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req registerBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RegisterBoard(r.Context(), id, req.BoardNumber, actor); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeOrderList(w http.ResponseWriter, orders []model.Order) {
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}
