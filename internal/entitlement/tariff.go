package entitlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tariff — тарифный план. Влияет только на отображение цены, но не на расчёт срока.
type Tariff struct {
	Code     string          `json:"code"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Catalog — неизменяемый набор тарифов, заданный конфигурацией.
type Catalog struct {
	tariffs []Tariff
	byCode  map[string]Tariff
}

// NewCatalog проверяет тарифы и строит каталог.
func NewCatalog(tariffs []Tariff) (*Catalog, error) {
	if len(tariffs) == 0 {
		return nil, fmt.Errorf("%w: tariff catalog is empty", ErrConfiguration)
	}
	c := &Catalog{byCode: make(map[string]Tariff, len(tariffs))}
	for _, t := range tariffs {
		if t.Code == "" {
			return nil, fmt.Errorf("%w: tariff code is empty", ErrConfiguration)
		}
		if _, dup := c.byCode[t.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate tariff %q", ErrConfiguration, t.Code)
		}
		if t.Price.IsNegative() {
			return nil, fmt.Errorf("%w: tariff %q has negative price", ErrConfiguration, t.Code)
		}
		if t.Title == "" {
			t.Title = t.Code
		}
		c.byCode[t.Code] = t
		c.tariffs = append(c.tariffs, t)
	}
	return c, nil
}

// DefaultCatalog возвращает тарифы по умолчанию.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]Tariff{
		{Code: "outline", Title: "OutLine", Price: decimal.NewFromInt(70), Currency: "RUB"},
		{Code: "v2ray", Title: "v2raytun", Price: decimal.NewFromInt(70), Currency: "RUB"},
		{Code: "bundle", Title: "OutLine/V2RayTun + AmneziaVPN", Price: decimal.NewFromInt(140), Currency: "RUB"},
	})
	return c
}

func (c *Catalog) Lookup(code string) (Tariff, bool) {
	t, ok := c.byCode[code]
	return t, ok
}

// Check возвращает ErrUnknownTariff, если кода нет в каталоге.
func (c *Catalog) Check(code string) error {
	if _, ok := c.byCode[code]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTariff, code)
	}
	return nil
}

func (c *Catalog) Title(code *string) string {
	if code == nil {
		return ""
	}
	if t, ok := c.byCode[*code]; ok {
		return t.Title
	}
	return *code
}

func (c *Catalog) All() []Tariff {
	out := make([]Tariff, len(c.tariffs))
	copy(out, c.tariffs)
	return out
}
