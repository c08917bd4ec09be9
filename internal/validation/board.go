// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"
)

var boardNumberPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// NormalizeBoardNumber приводит номер пластины к каноническому виду:
// пробелы по краям и внутри удаляются, буквы переводятся в верхний регистр.
func NormalizeBoardNumber(boardNumber string) string {
	return strings.ToUpper(strings.Join(strings.Fields(boardNumber), ""))
}

// IsValidBoardNumber проверяет уже нормализованный номер пластины:
// только заглавные латинские буквы и цифры, минимум одна буква.
func IsValidBoardNumber(boardNumber string) bool {
	if !boardNumberPattern.MatchString(boardNumber) {
		return false
	}
	return strings.ContainsAny(boardNumber, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
