package entitlement

import "errors"

// Классы ошибок ядра. Ошибки хранилища оборачиваются с указанием операции
// и проверяются через errors.Is; ошибки доставки уведомлений наружу не выходят.
var (
	// ErrConfiguration — ядро запущено без обязательной настройки. Фатально на старте.
	ErrConfiguration = errors.New("entitlement: invalid configuration")
	// ErrNotFound — пользователь, подписка или заявка не найдены. Хранилище не изменялось.
	ErrNotFound = errors.New("entitlement: not found")

	ErrInvalidCredit         = errors.New("entitlement: credit must be between 1 and 3650 days")
	ErrMonthsNotAllowed      = errors.New("entitlement: months value is not allowed")
	ErrUnknownTariff         = errors.New("entitlement: unknown tariff")
	ErrUnknownCredentialKind = errors.New("entitlement: unknown credential kind")
	ErrInvalidCredential     = errors.New("entitlement: credential value is too short")
	ErrInvalidPaymentProof   = errors.New("entitlement: payment proof reference is empty")
)
