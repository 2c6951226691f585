package entitlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	broken := []func(p *Policy){
		func(p *Policy) { p.ScanInterval = 0 },
		func(p *Policy) { p.WarnBefore = -time.Second },
		func(p *Policy) { p.GracePeriod = -time.Second },
		func(p *Policy) { p.ReferralBonusDays = 0 },
		func(p *Policy) { p.DaysPerMonth = 0 },
		func(p *Policy) { p.NotifyTimeout = 0 },
		func(p *Policy) { p.AllowedGrantMonths = nil },
	}
	for _, mutate := range broken {
		p := DefaultPolicy()
		mutate(&p)
		assert.ErrorIs(t, p.Validate(), ErrConfiguration)
	}
}

func TestPolicy_MonthsToDays(t *testing.T) {
	p := DefaultPolicy()

	days, err := p.MonthsToDays(3)
	require.NoError(t, err)
	assert.Equal(t, 90, days)

	days, err = p.MonthsToDays(4)
	require.NoError(t, err)
	assert.Equal(t, 120, days)

	assert.NoError(t, p.CheckGrantMonths(12))
	assert.ErrorIs(t, p.CheckGrantMonths(4), ErrMonthsNotAllowed)

	_, err = p.MonthsToDays(0)
	assert.ErrorIs(t, err, ErrInvalidCredit)
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	tariff, ok := c.Lookup("bundle")
	require.True(t, ok)
	assert.True(t, tariff.Price.Equal(decimal.NewFromInt(140)))
	assert.NoError(t, c.Check("outline"))
	assert.ErrorIs(t, c.Check("premium"), ErrUnknownTariff)

	code := "v2ray"
	assert.Equal(t, "v2raytun", c.Title(&code))
	assert.Equal(t, "", c.Title(nil))
	assert.Len(t, c.All(), 3)

	_, err := NewCatalog([]Tariff{{Code: "a"}, {Code: "a"}})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewCatalog(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
