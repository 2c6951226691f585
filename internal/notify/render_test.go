package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

func newTestRenderer() *Renderer {
	return NewRenderer(entitlement.DefaultCatalog(), entitlement.DefaultPolicy(), nil)
}

func TestRender(t *testing.T) {
	expires := time.Date(2025, 7, 1, 10, 30, 0, 0, time.UTC)
	r := newTestRenderer()

	tests := []struct {
		name string
		n    models.Notification
		want []string
	}{
		{
			name: "expiring soon",
			n:    models.Notification{Kind: models.NotifyExpiringSoon, ExpiresAt: &expires},
			want: []string{"меньше 2 дн.", "01.07.2025 10:30"},
		},
		{
			name: "expired",
			n:    models.Notification{Kind: models.NotifyExpired},
			want: []string{"Подписка окончена", "2 дн."},
		},
		{
			name: "keys revoked",
			n:    models.Notification{Kind: models.NotifyKeysRevoked},
			want: []string{"Ключи удалены"},
		},
		{
			name: "payment approved",
			n:    models.Notification{Kind: models.NotifyPaymentOK, Days: 90, Tariff: "bundle", ExpiresAt: &expires},
			want: []string{"+90 дней", "OutLine/V2RayTun + AmneziaVPN", "01.07.2025"},
		},
		{
			name: "referral bonus",
			n:    models.Notification{Kind: models.NotifyReferralBonus, Days: 14, SubjectID: 7, SubjectName: "Ann"},
			want: []string{"14 дней", `tg://user?id=7`, "Ann"},
		},
		{
			name: "referral joined escapes names",
			n:    models.Notification{Kind: models.NotifyReferralJoined, SubjectID: 7, SubjectName: "<b>x</b>"},
			want: []string{"&lt;b&gt;x&lt;/b&gt;"},
		},
		{
			name: "credential set",
			n:    models.Notification{Kind: models.NotifyCredentialSet, Credential: models.CredentialAmnezia},
			want: []string{"AmneziaVPN"},
		},
		{
			name: "tariff set",
			n:    models.Notification{Kind: models.NotifyTariffSet, Tariff: "v2ray"},
			want: []string{"v2raytun"},
		},
		{
			name: "operator new user",
			n:    models.Notification{Kind: models.NotifyOperatorNewUser, SubjectID: 9},
			want: []string{"Новый пользователь", "Без имени", "<code>9</code>"},
		},
		{
			name: "operator new payment",
			n: models.Notification{Kind: models.NotifyOperatorNewPayment, SubjectID: 9, SubjectName: "Bob",
				Tariff: "outline", PaymentProof: "file-123"},
			want: []string{"Новый скриншот оплаты", "70 RUB / месяц", "file-123"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := r.Render(tt.n)
			require.NoError(t, err)
			for _, part := range tt.want {
				assert.Contains(t, text, part)
			}
		})
	}
}

func TestRender_UnknownKind(t *testing.T) {
	_, err := newTestRenderer().Render(models.Notification{Kind: "carrier_pigeon"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
