// Package entitlement содержит чистую доменную логику учёта доступа:
// настройки политики, каталог тарифов, арифметику продления срока
// и вычисление состояния подписки для планировщика.
//
// Пакет не обращается к хранилищу и сети, поэтому одни и те же функции
// используются и сервисами, и тестами.
package entitlement

import (
	"fmt"
	"slices"
	"time"
)

// Значения по умолчанию.
const (
	DefaultScanInterval      = 15 * time.Minute
	DefaultWarnBefore        = 48 * time.Hour
	DefaultGracePeriod       = 48 * time.Hour
	DefaultReferralBonusDays = 14
	DefaultReferralTrialDays = 3
	DefaultDaysPerMonth      = 30
	DefaultNotifyTimeout     = 5 * time.Second
)

// Policy — настраиваемые параметры жизненного цикла подписки.
type Policy struct {
	ScanInterval       time.Duration // Интервал между проходами планировщика
	WarnBefore         time.Duration // За сколько до окончания предупреждать
	GracePeriod        time.Duration // Сколько ключи живут после окончания
	ReferralBonusDays  int           // Бонус рефереру за первую оплату реферала
	ReferralTrialDays  int           // Пробный период приглашённому
	DaysPerMonth       int           // Сколько дней в оплаченном месяце
	NotifyTimeout      time.Duration // Ограничение на одну доставку уведомления
	AllowedGrantMonths []int         // Допустимые значения для начисления месяцев оператором
}

// DefaultPolicy возвращает политику с параметрами по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		ScanInterval:       DefaultScanInterval,
		WarnBefore:         DefaultWarnBefore,
		GracePeriod:        DefaultGracePeriod,
		ReferralBonusDays:  DefaultReferralBonusDays,
		ReferralTrialDays:  DefaultReferralTrialDays,
		DaysPerMonth:       DefaultDaysPerMonth,
		NotifyTimeout:      DefaultNotifyTimeout,
		AllowedGrantMonths: []int{1, 2, 3, 6, 12},
	}
}

// Validate проверяет политику. Ошибка оборачивает ErrConfiguration.
func (p Policy) Validate() error {
	switch {
	case p.ScanInterval <= 0:
		return fmt.Errorf("%w: scan interval must be positive", ErrConfiguration)
	case p.WarnBefore <= 0:
		return fmt.Errorf("%w: warn threshold must be positive", ErrConfiguration)
	case p.GracePeriod < 0:
		return fmt.Errorf("%w: grace period must not be negative", ErrConfiguration)
	case p.ReferralBonusDays <= 0 || p.ReferralTrialDays <= 0:
		return fmt.Errorf("%w: referral credits must be positive", ErrConfiguration)
	case p.DaysPerMonth <= 0:
		return fmt.Errorf("%w: days per month must be positive", ErrConfiguration)
	case p.NotifyTimeout <= 0:
		return fmt.Errorf("%w: notify timeout must be positive", ErrConfiguration)
	case len(p.AllowedGrantMonths) == 0:
		return fmt.Errorf("%w: allowed grant months are empty", ErrConfiguration)
	}
	return nil
}

// MonthsToDays переводит месяцы в дни: months × DaysPerMonth.
func (p Policy) MonthsToDays(months int) (int, error) {
	if months <= 0 {
		return 0, ErrInvalidCredit
	}
	return months * p.DaysPerMonth, nil
}

// CheckGrantMonths проверяет, что оператор может начислить months месяцев.
func (p Policy) CheckGrantMonths(months int) error {
	if !slices.Contains(p.AllowedGrantMonths, months) {
		return fmt.Errorf("%w: %d", ErrMonthsNotAllowed, months)
	}
	return nil
}

// Clock возвращает текущее время. Сервисы получают его в конструкторе, тесты подставляют своё.
type Clock func() time.Time

// SystemClock возвращает time.Now.
func SystemClock() time.Time {
	return time.Now().UTC()
}
