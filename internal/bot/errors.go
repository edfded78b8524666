// internal/bot/errors.go
package bot

import (
	"errors"

	"goldencobra/internal/spending"
)

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownAction = errors.New("unknown action")
)

// Error kinds reported to metrics and mapped to HTTP statuses.
const (
	KindValidation    = "validation"
	KindNotFound      = "not_found"
	KindUnavailable   = "unavailable"
	KindRateLimited   = "rate_limited"
	KindUnknownAction = "unknown_action"
	KindInternal      = "internal"
)

// ErrorKind classifies err for reporting.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, spending.ErrValidation):
		return KindValidation
	case errors.Is(err, spending.ErrNotFound):
		return KindNotFound
	case errors.Is(err, spending.ErrStoreUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUnknownAction):
		return KindUnknownAction
	default:
		return KindInternal
	}
}

var amountReasons = map[string]string{
	"empty":                      "сумма не указана",
	"not a number":               "это не число",
	"must be positive":           "сумма должна быть больше нуля",
	"at most two decimal places": "не больше двух знаков после запятой",
	"too large":                  "слишком большая сумма",
	"ambiguous separator":        "запятая отделяет только дробную часть, пишите тысячи без разделителей",
}

// userMessage is the text shown in place of a reply when err is returned.
func userMessage(err error) string {
	var verr *spending.ValidationError
	if errors.As(err, &verr) && verr.Field == "amount" {
		msg := "❌ Неверный формат суммы"
		if reason, ok := amountReasons[verr.Reason]; ok {
			msg += ": " + reason
		}
		return msg + "\n\nВведите количество звёзд цифрами (например: 1500)"
	}

	switch ErrorKind(err) {
	case KindValidation:
		return "❌ Некорректный запрос"
	case KindNotFound:
		return "❌ Пользователь не найден. Нажмите /start"
	case KindUnavailable:
		return "❌ Ошибка при обработке транзакции. Попробуйте позже"
	case KindRateLimited:
		return "⏳ Слишком много запросов. Подождите немного"
	case KindUnknownAction:
		return "🤷 Неизвестная команда"
	default:
		return "❌ Что-то пошло не так. Попробуйте позже"
	}
}
