// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

const (
	// MinLoadAmount задаёт минимальную сумму пополнения кошелька.
	MinLoadAmount model.Money = 100_00
	// MaxLoadAmount задаёт максимальную сумму пополнения кошелька.
	MaxLoadAmount model.Money = 100_000_00
)

var (
	// ErrAmountTooSmall возвращается для суммы пополнения меньше минимальной.
	ErrAmountTooSmall = errors.New("Minimum amount is ₹100")
	// ErrAmountTooLarge возвращается для суммы пополнения больше максимальной.
	ErrAmountTooLarge = errors.New("Maximum amount is ₹1,00,000")
)

// LoadAmount проверяет сумму пополнения кошелька.
func LoadAmount(amount model.Money) error {
	if amount < MinLoadAmount {
		return ErrAmountTooSmall
	}
	if amount > MaxLoadAmount {
		return ErrAmountTooLarge
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Error описывает ошибки валидации полей запроса.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, tag))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Struct проверяет структуру по тегам validate.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &Error{Fields: fields}
}
