package premium

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

func money(q decimal.Decimal) string { return q.StringFixed(2) }

func TestVehicle_WorkedExamples(t *testing.T) {
	t.Run("bike 100cc aged 12 months", func(t *testing.T) {
		q, err := Vehicle(id.KindBike, 100, 12)
		require.NoError(t, err)
		assert.Equal(t, "44000.00", money(q.IDV))
		assert.Equal(t, "714.00", money(q.ThirdPartyPremium))
		assert.Equal(t, "1320.00", money(q.OwnDamage))
		assert.Equal(t, "366.12", money(q.Tax))
		assert.Equal(t, "2400.12", money(q.ComprehensivePremium))
	})

	t.Run("car 1200cc aged 24 months", func(t *testing.T) {
		q, err := Vehicle(id.KindCar, 1200, 24)
		require.NoError(t, err)
		assert.Equal(t, "380000.00", money(q.IDV))
		assert.Equal(t, "3221.00", money(q.ThirdPartyPremium))
		assert.Equal(t, "12768.78", money(q.ComprehensivePremium))
	})
}

func TestVehicle_Tariffs(t *testing.T) {
	tests := []struct {
		kind   id.InstrumentKind
		cc     int
		baseTP string
		idv    string
	}{
		{id.KindBike, 75, "538.00", "50000.00"},
		{id.KindBike, 76, "714.00", "50000.00"},
		{id.KindBike, 150, "714.00", "50000.00"},
		{id.KindBike, 350, "1366.00", "80000.00"},
		{id.KindBike, 351, "2804.00", "120000.00"},
		{id.KindCar, 1000, "2094.00", "300000.00"},
		{id.KindCar, 1500, "3221.00", "500000.00"},
		{id.KindCar, 1501, "7897.00", "800000.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			q, err := Vehicle(tt.kind, tt.cc, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.baseTP, money(q.ThirdPartyPremium), "cc=%d", tt.cc)
			assert.Equal(t, tt.idv, money(q.IDV), "cc=%d", tt.cc)
		})
	}
}

func TestVehicle_Properties(t *testing.T) {
	t.Run("idv never drops below the floor", func(t *testing.T) {
		for _, kind := range []id.InstrumentKind{id.KindBike, id.KindCar} {
			for _, months := range []int{0, 50, 99, 100, 150, 600} {
				q, err := Vehicle(kind, 200, months)
				require.NoError(t, err)
				assert.True(t, q.IDV.GreaterThanOrEqual(MinIDV), "%s months=%d idv=%s", kind, months, q.IDV)
			}
		}
	})

	t.Run("comprehensive is the sum of its parts", func(t *testing.T) {
		for _, kind := range []id.InstrumentKind{id.KindBike, id.KindCar} {
			for _, cc := range []int{50, 125, 300, 900, 1400, 2000} {
				q, err := Vehicle(kind, cc, 7)
				require.NoError(t, err)
				sum := q.ThirdPartyPremium.Add(q.OwnDamage).Add(q.Tax)
				assert.True(t, sum.Equal(q.ComprehensivePremium), "%s cc=%d", kind, cc)
			}
		}
	})

	t.Run("fully depreciated bike uses the floor for own damage", func(t *testing.T) {
		q, err := Vehicle(id.KindBike, 100, 120)
		require.NoError(t, err)
		assert.Equal(t, "10000.00", money(q.IDV))
		assert.Equal(t, "300.00", money(q.OwnDamage))
	})

	t.Run("unknown kind is invalid input", func(t *testing.T) {
		_, err := Vehicle(id.KindHealth, 100, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestHealth(t *testing.T) {
	t.Run("senior smoker family", func(t *testing.T) {
		p := Health(55, 3, decimal.NewFromInt(500000), true, false)
		assert.Equal(t, "18000.00", money(p))
	})

	t.Run("loadings are additive before the age factor", func(t *testing.T) {
		p := Health(30, 1, decimal.NewFromInt(100000), true, true)
		// 2000 + 1000 + 2000 + 3000
		assert.Equal(t, "8000.00", money(p))
	})

	t.Run("age 50 is not senior", func(t *testing.T) {
		p := Health(50, 2, decimal.NewFromInt(100000), false, false)
		assert.Equal(t, "4000.00", money(p))
	})
}

func TestLife(t *testing.T) {
	t.Run("non-smoker high risk", func(t *testing.T) {
		p, err := Life(40, decimal.NewFromInt(1000000), 20, false, "high")
		require.NoError(t, err)
		assert.Equal(t, "1680.00", money(p))
	})

	t.Run("risk matching is case insensitive", func(t *testing.T) {
		upper, err := Life(30, decimal.NewFromInt(500000), 10, true, "MEDIUM")
		require.NoError(t, err)
		lower, err := Life(30, decimal.NewFromInt(500000), 10, true, "medium")
		require.NoError(t, err)
		assert.True(t, upper.Equal(lower))
		// 250 * 1.1 * 1.3 * 1.2
		assert.Equal(t, "429.00", money(upper))
	})

	t.Run("unknown risk applies no loading", func(t *testing.T) {
		p, err := Life(20, decimal.NewFromInt(100000), 10, false, "astronaut")
		require.NoError(t, err)
		assert.Equal(t, "50.00", money(p))
	})

	t.Run("age bounds", func(t *testing.T) {
		for _, age := range []int{17, 71} {
			_, err := Life(age, decimal.NewFromInt(100000), 10, false, "low")
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "age=%d", age)
		}
		for _, age := range []int{18, 70} {
			_, err := Life(age, decimal.NewFromInt(100000), 10, false, "low")
			assert.NoError(t, err, "age=%d", age)
		}
	})

	t.Run("oldest band doubles", func(t *testing.T) {
		p, err := Life(70, decimal.NewFromInt(100000), 10, false, "low")
		require.NoError(t, err)
		assert.Equal(t, "100.00", money(p))
	})
}
