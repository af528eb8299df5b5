package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverline/internal/instrument/models"
	"coverline/internal/instrument/store"
	"coverline/internal/platform/metrics"
	"coverline/internal/premium"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/audit/publisher"
	auditmemory "coverline/pkg/platform/audit/store/memory"
	"coverline/pkg/requestcontext"
)

type knownUsers map[id.UserID]bool

func (k knownUsers) Exists(_ context.Context, userID id.UserID) (bool, error) {
	return k[userID], nil
}

type fixture struct {
	svc     *Service
	store   *store.InMemoryStore
	audit   *auditmemory.InMemoryStore
	metrics *metrics.Metrics
	owner   id.UserID
	ctx     context.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	owner := id.NewUserID()
	st := store.NewInMemoryStore()
	auditStore := auditmemory.NewInMemoryStore()
	pub := publisher.NewPublisher(auditStore)
	t.Cleanup(pub.Close)
	m := metrics.New(prometheus.NewRegistry())

	opts = append([]Option{WithAuditPublisher(pub), WithMetrics(m)}, opts...)
	return &fixture{
		svc:     New(st, knownUsers{owner: true}, premium.NewQuoter(), opts...),
		store:   st,
		audit:   auditStore,
		metrics: m,
		owner:   owner,
		ctx:     requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
}

func bike(cc, age int) models.VehicleAttributes {
	return models.VehicleAttributes{Kind: id.KindBike, CC: cc, AgeInMonths: age, Manufacturer: "Bajaj", RegistrationNumber: "KA01AB1234"}
}

func TestCreate(t *testing.T) {
	t.Run("prices a bike and stores it pending", func(t *testing.T) {
		f := newFixture(t)

		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)

		assert.Equal(t, models.StatusPending, inst.Status)
		assert.Nil(t, inst.PurchaseID)
		assert.Equal(t, id.KindBike, inst.Kind)
		v := inst.Details.(*models.VehicleDetails)
		assert.Equal(t, "44000.00", v.IDV().StringFixed(2))
		assert.Equal(t, "714.00", v.ThirdPartyPremium().StringFixed(2))
		assert.Equal(t, "2400.12", v.ComprehensivePremium().StringFixed(2))
		assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.InstrumentsCreated.WithLabelValues("bike")))
		assert.Equal(t, []string{"instrument_created"}, f.audit.Actions(f.owner))
	})

	t.Run("prices health and life", func(t *testing.T) {
		f := newFixture(t)

		health, err := f.svc.Create(f.ctx, f.owner, models.HealthAttributes{
			Age: 55, Members: 3, SumInsured: decimal.NewFromInt(500000), Smoker: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "18000.00", health.Premium().StringFixed(2))

		life, err := f.svc.Create(f.ctx, f.owner, models.LifeAttributes{
			Age: 40, SumAssured: decimal.NewFromInt(1000000), TermYears: 20, OccupationRisk: "HIGH",
		})
		require.NoError(t, err)
		assert.Equal(t, "1680.00", life.Premium().StringFixed(2))
	})

	t.Run("unknown owner is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(f.ctx, id.NewUserID(), bike(100, 12))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("life age outside bounds is rejected and nothing is stored", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(f.ctx, f.owner, models.LifeAttributes{Age: 71, SumAssured: decimal.NewFromInt(1000), TermYears: 10})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		all, err := f.svc.List(f.ctx, id.KindLife)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestUpdate(t *testing.T) {
	t.Run("reprices and the new values are visible on read", func(t *testing.T) {
		f := newFixture(t)
		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)

		_, err = f.svc.Update(f.ctx, id.KindBike, inst.ID, bike(400, 0))
		require.NoError(t, err)

		got, err := f.svc.Get(f.ctx, id.KindBike, inst.ID)
		require.NoError(t, err)
		v := got.Details.(*models.VehicleDetails)
		assert.Equal(t, "120000.00", v.IDV().StringFixed(2))
		assert.Equal(t, "2804.00", v.ThirdPartyPremium().StringFixed(2))

		list, err := f.svc.List(f.ctx, id.KindBike)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Premium().Equal(got.Premium()))
	})

	t.Run("allowed after confirmation", func(t *testing.T) {
		f := newFixture(t)
		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)
		_, err = f.svc.Bind(f.ctx, id.KindBike, inst.ID, id.NewPurchaseID())
		require.NoError(t, err)

		updated, err := f.svc.Update(f.ctx, id.KindBike, inst.ID, bike(100, 24))
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, updated.Status)
	})

	t.Run("attributes of another kind are rejected", func(t *testing.T) {
		f := newFixture(t)
		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)

		_, err = f.svc.Update(f.ctx, id.KindBike, inst.ID, models.HealthAttributes{Age: 30, Members: 1, SumInsured: decimal.NewFromInt(1)})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("missing instrument is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Update(f.ctx, id.KindBike, id.NewInstrumentID(), bike(100, 12))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestGet_KindIsPartOfIdentity(t *testing.T) {
	f := newFixture(t)
	inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
	require.NoError(t, err)

	_, err = f.svc.Get(f.ctx, id.KindCar, inst.ID)
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Contains(t, err.Error(), "Car policy not found")
}

func TestBind(t *testing.T) {
	f := newFixture(t)
	inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
	require.NoError(t, err)

	first := id.NewPurchaseID()
	bound, err := f.svc.Bind(f.ctx, id.KindBike, inst.ID, first)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, bound.Status)
	assert.Equal(t, first, *bound.PurchaseID)

	second := id.NewPurchaseID()
	rebound, err := f.svc.Bind(f.ctx, id.KindBike, inst.ID, second)
	require.NoError(t, err)
	assert.Equal(t, second, *rebound.PurchaseID)

	_, err = f.svc.Bind(f.ctx, id.KindBike, id.NewInstrumentID(), first)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCancel(t *testing.T) {
	t.Run("marks pending instruments cancelled by default", func(t *testing.T) {
		f := newFixture(t)
		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)

		res, err := f.svc.Cancel(f.ctx, id.KindBike, inst.ID)
		require.NoError(t, err)
		assert.False(t, res.Deleted)
		assert.True(t, res.Changed)
		assert.Nil(t, res.PurchaseID)
		assert.Equal(t, models.StatusCancelled, res.Instrument.Status)
	})

	t.Run("deletes pending instruments under the delete policy", func(t *testing.T) {
		f := newFixture(t, WithDeletePendingOnCancel(true))
		inst, err := f.svc.Create(f.ctx, f.owner, models.HealthAttributes{Age: 30, Members: 1, SumInsured: decimal.NewFromInt(100000)})
		require.NoError(t, err)

		res, err := f.svc.Cancel(f.ctx, id.KindHealth, inst.ID)
		require.NoError(t, err)
		assert.True(t, res.Deleted)

		_, err = f.svc.Get(f.ctx, id.KindHealth, inst.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("bound instruments are marked even under the delete policy", func(t *testing.T) {
		f := newFixture(t, WithDeletePendingOnCancel(true))
		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)
		purchaseID := id.NewPurchaseID()
		_, err = f.svc.Bind(f.ctx, id.KindBike, inst.ID, purchaseID)
		require.NoError(t, err)

		res, err := f.svc.Cancel(f.ctx, id.KindBike, inst.ID)
		require.NoError(t, err)
		assert.False(t, res.Deleted)
		require.NotNil(t, res.PurchaseID)
		assert.Equal(t, purchaseID, *res.PurchaseID)
	})

	t.Run("cancelling twice is a no-op success", func(t *testing.T) {
		f := newFixture(t)
		inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
		require.NoError(t, err)
		_, err = f.svc.Cancel(f.ctx, id.KindBike, inst.ID)
		require.NoError(t, err)

		res, err := f.svc.Cancel(f.ctx, id.KindBike, inst.ID)
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Equal(t, models.StatusCancelled, res.Instrument.Status)
		assert.Equal(t, []string{"instrument_created", "instrument_cancelled"}, f.audit.Actions(f.owner))
	})

	t.Run("missing instrument is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Cancel(f.ctx, id.KindLife, id.NewInstrumentID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	inst, err := f.svc.Create(f.ctx, f.owner, bike(100, 12))
	require.NoError(t, err)
	_, err = f.svc.Bind(f.ctx, id.KindBike, inst.ID, id.NewPurchaseID())
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(f.ctx, id.KindBike, inst.ID))
	assert.True(t, dErrors.HasCode(f.svc.Delete(f.ctx, id.KindBike, inst.ID), dErrors.CodeNotFound))

	mine, err := f.svc.ListByUser(f.ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
