// Package authz содержит таблицу полномочий ролей для операций над заявками.
// Сервис жизненного цикла не знает о ролях: проверка выполняется на границе HTTP
// до вызова операции.
package authz

// Role — роль пользователя в системе.
type Role string

const (
	RoleUser           Role = "User"
	RoleAdministrator  Role = "Administrator"
	RoleOrderValidator Role = "OrderValidator"
	RoleBoardRegistrar Role = "BoardRegistrar"
)

// Operation — операция над заявкой, требующая полномочий.
type Operation string

const (
	OpCreateOrder   Operation = "order.create"
	OpEditOrder     Operation = "order.edit"
	OpDeleteOrder   Operation = "order.delete"
	OpSubmitOrder   Operation = "order.submit"
	OpViewOwnOrders Operation = "order.view_own"
	OpViewOrder     Operation = "order.view"

	OpViewQueue     Operation = "order.view_queue"
	OpReturnOrder   Operation = "order.return"
	OpSetInProgress Operation = "order.set_in_progress"

	OpRegisterBoard Operation = "order.register_board"

	OpViewByStatuses Operation = "order.view_by_statuses"
)

var anyAuthenticated = []Role{RoleUser, RoleAdministrator, RoleOrderValidator, RoleBoardRegistrar}

// policy задаёт, каким ролям разрешена каждая операция.
var policy = map[Operation][]Role{
	OpCreateOrder:   anyAuthenticated,
	OpEditOrder:     anyAuthenticated,
	OpDeleteOrder:   anyAuthenticated,
	OpSubmitOrder:   anyAuthenticated,
	OpViewOwnOrders: anyAuthenticated,
	OpViewOrder:     anyAuthenticated,

	OpViewQueue:     {RoleOrderValidator, RoleAdministrator},
	OpReturnOrder:   {RoleOrderValidator, RoleAdministrator},
	OpSetInProgress: {RoleOrderValidator, RoleAdministrator},

	OpRegisterBoard: {RoleBoardRegistrar, RoleAdministrator},

	OpViewByStatuses: {RoleAdministrator},
}

// Allowed сообщает, разрешена ли операция указанной роли.
func Allowed(role Role, op Operation) bool {
	for _, allowed := range policy[op] {
		if allowed == role {
			return true
		}
	}
	return false
}

// AnyAllowed сообщает, разрешена ли операция хотя бы одной из ролей пользователя.
func AnyAllowed(roles []string, op Operation) bool {
	for _, r := range roles {
		if Allowed(Role(r), op) {
			return true
		}
	}
	return false
}
