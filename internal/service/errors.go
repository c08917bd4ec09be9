package service

import "strings"

// Коды бизнес-ошибок — стабильный контракт для вызывающих сторон.
// Обработчики ветвятся по коду, а не по тексту сообщения.
const (
	CodeOrderNotFound   = "ORDER_NOT_FOUND"
	CodeInvalidStatus   = "INVALID_STATUS"
	CodeDuplicateEngine = "DUPLICATE_ENGINE"
	CodeDuplicateBoard  = "DUPLICATE_BOARD"
	CodeMissingComment  = "MISSING_COMMENT"
	CodeMissingData     = "MISSING_DATA"
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeVersionConflict = "VERSION_CONFLICT"
)

// Error — бизнес-ошибка перехода жизненного цикла со стабильным кодом.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ValidationError содержит список сообщений о некорректных входных данных.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}
