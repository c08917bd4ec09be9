// Package model содержит доменные сущности системы регистрации транспортных средств.
package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus описывает статус заявки на регистрацию транспортного средства.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "Draft"
	OrderStatusNew        OrderStatus = "New"
	OrderStatusReturned   OrderStatus = "Returned"
	OrderStatusInProgress OrderStatus = "InProgress"
	OrderStatusApproved   OrderStatus = "Approved"
)

// allowedTransitions задаёт граф переходов жизненного цикла заявки.
// Approved — терминальный статус, исходящих переходов не имеет.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:      {OrderStatusNew},
	OrderStatusNew:        {OrderStatusReturned, OrderStatusInProgress},
	OrderStatusReturned:   {OrderStatusReturned, OrderStatusInProgress},
	OrderStatusInProgress: {OrderStatusApproved},
	OrderStatusApproved:   {},
}

// CanTransition сообщает, допустим ли переход из статуса from в статус to.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Actor представляет пользователя, выполняющего операцию, для аудита.
type Actor struct {
	ID   string
	Name string
}

// Order описывает заявку на регистрацию транспортного средства.
type Order struct {
	ID uuid.UUID

	CreatedByID   string
	CreatedByName string
	CreatedAt     time.Time

	// Данные заявителя.
	FullName       string
	NationalNumber string
	MotherName     string

	// Данные транспортного средства.
	CarName           string
	Model             string
	YearOfManufacture int
	Color             string
	EngineNumber      string

	// Номер лицензионной пластины, присваивается при регистрации.
	BoardNumber string

	Status              OrderStatus
	StatusChangedAt     *time.Time
	StatusChangedByID   string
	StatusChangedByName string

	ReturnComment string

	ModifiedAt     *time.Time
	ModifiedByID   string
	ModifiedByName string

	DeletedAt     *time.Time
	DeletedByID   string
	DeletedByName string
	IsDeleted     bool

	// RowVersion — токен оптимистической блокировки, инкрементируется при каждом обновлении.
	RowVersion int64
}
