package entitlement

import (
	"time"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

// State — производное состояние подписки. Не хранится, а вычисляется
// из expiresAt и текущего времени при каждом проходе.
type State int

const (
	StateActive State = iota
	StateWarning
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// DeriveState вычисляет состояние подписки с окончанием expiresAt на момент now.
func DeriveState(expiresAt, now time.Time, p Policy) State {
	if expiresAt.After(now) {
		if expiresAt.Sub(now) <= p.WarnBefore {
			return StateWarning
		}
		return StateActive
	}
	if !now.Before(expiresAt.Add(p.GracePeriod)) {
		return StateRevoked
	}
	return StateExpired
}

// Plan описывает действия планировщика над одной строкой подписки.
type Plan struct {
	State        State
	Reactivate   bool // сбросить expiredSent и keysRevoked
	ClearWarning bool // сбросить warnSent (подписка снова дальше порога)
	SendWarning  bool
	SendExpired  bool
	Revoke       bool
}

func (p Plan) Empty() bool {
	return !p.Reactivate && !p.ClearWarning && !p.SendWarning && !p.SendExpired && !p.Revoke
}

// PlanReconciliation строит план для подписки sub на момент now.
// Для подписки без expiresAt план всегда пустой. Повторный вызов на уже
// обработанной строке тоже даёт пустой план.
func PlanReconciliation(sub models.Subscription, now time.Time, p Policy) Plan {
	if sub.ExpiresAt == nil {
		return Plan{}
	}
	plan := Plan{State: DeriveState(*sub.ExpiresAt, now, p)}

	switch plan.State {
	case StateActive:
		plan.Reactivate = sub.ExpiredSent || sub.KeysRevoked
		plan.ClearWarning = sub.WarnSent
	case StateWarning:
		plan.Reactivate = sub.ExpiredSent || sub.KeysRevoked
		plan.SendWarning = !sub.WarnSent
	case StateExpired:
		plan.SendExpired = !sub.ExpiredSent && !sub.KeysRevoked
	case StateRevoked:
		plan.SendExpired = !sub.ExpiredSent && !sub.KeysRevoked
		plan.Revoke = !sub.KeysRevoked
	}
	return plan
}
