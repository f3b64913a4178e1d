package view

import (
	"time"

	"github.com/samber/lo"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// ExpiringSoonDays - сколько дней до окончания подписка считается истекающей.
const ExpiringSoonDays = 7

// Status - вычисляемый статус подписки.
type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusExpiringSoon
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpiringSoon:
		return "expiringSoon"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// MarshalText кодирует статус строкой.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DaysRemaining возвращает число суток от полуночи today до даты окончания.
// Второе значение false, если дата некорректна.
func DaysRemaining(expirationDate string, today time.Time) (int, bool) {
	exp, ok := model.ParseDate(expirationDate)
	if !ok {
		return 0, false
	}
	// Разница считается в календарных днях, чтобы переход на летнее время не сдвигал результат.
	t := model.Midnight(today)
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / (24 * time.Hour)), true
}

// Classify вычисляет статус подписки и число оставшихся дней.
func Classify(expirationDate string, today time.Time) (Status, int) {
	days, ok := DaysRemaining(expirationDate, today)
	switch {
	case !ok:
		return StatusUnknown, 0
	case days < 0:
		return StatusExpired, days
	case days <= ExpiringSoonDays:
		return StatusExpiringSoon, days
	default:
		return StatusActive, days
	}
}

// SubscriptionSpec ищет по названию и заметкам и сортирует по дате окончания.
var SubscriptionSpec = Spec[model.Subscription]{
	Fields: func(s model.Subscription) []string { return []string{s.Name, s.Notes} },
	Compare: func(a, b model.Subscription) int {
		return compareDates(a.ExpirationDate, b.ExpirationDate)
	},
}

// SubscriptionRow - подписка с вычисленным статусом.
type SubscriptionRow struct {
	model.Subscription
	DaysRemaining int    `json:"daysRemaining"`
	Status        Status `json:"status"`
}

// Subscriptions строит отфильтрованный и отсортированный список подписок на дату today.
func Subscriptions(records []model.Subscription, query string, today time.Time) []SubscriptionRow {
	return lo.Map(SubscriptionSpec.Apply(records, query), func(s model.Subscription, _ int) SubscriptionRow {
		status, days := Classify(s.ExpirationDate, today)
		return SubscriptionRow{Subscription: s, DaysRemaining: days, Status: status}
	})
}

// SubscriptionStats - сводка по подпискам. Истекающие учитываются и в Active.
type SubscriptionStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiringSoon"`
}

// SubscriptionSummary считает статистику подписок на дату today.
func SubscriptionSummary(records []model.Subscription, today time.Time) SubscriptionStats {
	stats := SubscriptionStats{Total: len(records)}
	for _, s := range records {
		status, _ := Classify(s.ExpirationDate, today)
		switch status {
		case StatusExpired:
			stats.Expired++
		case StatusExpiringSoon:
			stats.ExpiringSoon++
			stats.Active++
		case StatusActive:
			stats.Active++
		}
	}
	return stats
}
