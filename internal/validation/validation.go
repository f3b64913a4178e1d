// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalid сопоставляется с любой ошибкой валидации через errors.Is.
var ErrInvalid = errors.New("validation failed")

// DateLayout задаёт формат календарной даты YYYY-MM-DD.
const DateLayout = "2006-01-02"

// FieldError описывает нарушение ограничения одного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error содержит список ошибок по полям записи.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Is позволяет сравнивать ошибку с ErrInvalid.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Builder накапливает ошибки по полям.
type Builder struct {
	fields []FieldError
}

// Add добавляет ошибку поля.
func (b *Builder) Add(field, message string) {
	b.fields = append(b.fields, FieldError{Field: field, Message: message})
}

// Required проверяет, что строковое поле не пустое.
func (b *Builder) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		b.Add(field, "required")
	}
}

// Date проверяет, что поле заполнено и содержит дату в формате YYYY-MM-DD.
func (b *Builder) Date(field, value string) {
	if strings.TrimSpace(value) == "" {
		b.Add(field, "required")
		return
	}
	if !IsDate(value) {
		b.Add(field, "must be a date in YYYY-MM-DD format")
	}
}

// NonNegative проверяет, что числовое поле не отрицательное.
func (b *Builder) NonNegative(field string, value float64) {
	if value < 0 {
		b.Add(field, "must not be negative")
	}
}

// Err возвращает *Error, если были накоплены ошибки, иначе nil.
func (b *Builder) Err() error {
	if len(b.fields) == 0 {
		return nil
	}
	return &Error{Fields: append([]FieldError(nil), b.fields...)}
}

// IsDate проверяет корректность календарной даты в формате YYYY-MM-DD.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
