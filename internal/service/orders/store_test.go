package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
)

type StoreSuite struct {
	suite.Suite

	ctx    context.Context
	repo   domain.OrderRepository
	items  domain.ItemRepository
	outbox *memory.OutboxRepository
	store  *orders.Store

	userUUID  string
	item1UUID string
	item2UUID string
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()

	users := memory.NewUserRepository()
	items := memory.NewItemRepository()
	s.items = items
	s.repo = memory.NewOrderRepository()
	s.outbox = memory.NewOutboxRepository()

	s.userUUID = uuid.NewString()
	s.item1UUID = uuid.NewString()
	s.item2UUID = uuid.NewString()

	s.Require().NoError(users.Create(s.ctx, domain.User{
		UUID:      s.userUUID,
		FirstName: "Name",
		LastName:  "Surname",
		Email:     "email@domain.com",
		Password:  "password",
	}))
	s.Require().NoError(items.Create(s.ctx, domain.Item{UUID: s.item1UUID, Name: "Item one", Price: decimal.NewFromInt(10)}))
	s.Require().NoError(items.Create(s.ctx, domain.Item{UUID: s.item2UUID, Name: "Item two", Price: decimal.NewFromInt(10)}))

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	s.store = orders.NewStore(s.repo, users, items,
		orders.WithOutbox(s.outbox),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		orders.WithLogger(logger.WithField("component", "order-store-test")),
	)
}

func (s *StoreSuite) lines(pairs ...any) []domain.LineRequest {
	result := make([]domain.LineRequest, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		result = append(result, domain.LineRequest{ItemUUID: pairs[i].(string), Quantity: int64(pairs[i+1].(int))})
	}
	return result
}

func (s *StoreSuite) countOrders() int {
	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	return len(all)
}

func (s *StoreSuite) TestListEmpty() {
	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *StoreSuite) TestCreateSuccess() {
	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 2, s.item2UUID, 1))
	s.Require().NoError(err)

	_, parseErr := uuid.Parse(order.UUID)
	s.NoError(parseErr, "order uuid must be generated")
	s.Equal(s.userUUID, order.UserUUID)
	s.True(order.TotalPrice.Equal(decimal.NewFromInt(30)), "total=%s", order.TotalPrice)
	s.Require().Len(order.Items, 2)
	s.Equal(s.item1UUID, order.Items[0].ItemUUID)
	s.True(order.Items[0].Subtotal.Equal(decimal.NewFromInt(20)))
	s.Equal(s.item2UUID, order.Items[1].ItemUUID)

	stored, err := s.store.Get(s.ctx, order.UUID)
	s.Require().NoError(err)
	s.Equal(order.View(), stored.View())
	s.Equal(1, s.countOrders())
}

func (s *StoreSuite) TestCreateDuplicateItemsStaySeparateLines() {
	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 1, s.item1UUID, 2))
	s.Require().NoError(err)

	s.Len(order.Items, 2)
	s.True(order.TotalPrice.Equal(decimal.NewFromInt(30)))
}

func (s *StoreSuite) TestCreateValidationFailures() {
	tests := []struct {
		name    string
		user    string
		lines   []domain.LineRequest
		wantErr error
	}{
		{name: "missing user", user: "", lines: s.lines(s.item1UUID, 1), wantErr: domain.ErrUserRequired},
		{name: "missing items", user: s.userUUID, lines: nil, wantErr: domain.ErrItemsRequired},
		{name: "empty items", user: s.userUUID, lines: []domain.LineRequest{}, wantErr: domain.ErrItemsEmpty},
		{name: "unknown user", user: uuid.NewString(), lines: s.lines(s.item1UUID, 1), wantErr: domain.ErrUserNotFound},
		{name: "malformed user", user: "not-a-uuid", lines: s.lines(s.item1UUID, 1), wantErr: domain.ErrUUIDMalformed},
		{name: "unknown items", user: s.userUUID, lines: s.lines(uuid.NewString(), 1, uuid.NewString(), 1), wantErr: domain.ErrItemNotFound},
		{name: "one unknown item", user: s.userUUID, lines: s.lines(s.item1UUID, 1, uuid.NewString(), 1), wantErr: domain.ErrItemNotFound},
		{name: "zero quantity", user: s.userUUID, lines: s.lines(s.item1UUID, 0), wantErr: domain.ErrQuantityInvalid},
		{name: "negative quantity", user: s.userUUID, lines: s.lines(s.item1UUID, -3), wantErr: domain.ErrQuantityInvalid},
		{name: "quantity above int32", user: s.userUUID, lines: s.lines(s.item1UUID, domain.MaxQuantity+1), wantErr: domain.ErrQuantityInvalid},
		{name: "subtotal out of range", user: s.userUUID, lines: s.lines(s.item1UUID, 1_000_000_000), wantErr: domain.ErrAmountOutOfRange},
		{
			name:    "total out of range",
			user:    s.userUUID,
			lines:   s.lines(s.item1UUID, 600_000_000, s.item2UUID, 600_000_000),
			wantErr: domain.ErrAmountOutOfRange,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.store.Create(s.ctx, tt.user, tt.lines)
			s.Require().Error(err)
			s.ErrorIs(err, tt.wantErr)
			s.True(domain.IsValidation(err), "expected validation error, got %v", err)
			s.Equal(0, s.countOrders())
		})
	}

	pending, err := s.outbox.PullPending(10)
	s.Require().NoError(err)
	s.Empty(pending, "rejected requests must not emit events")
}

func (s *StoreSuite) TestCreateAcceptsMaxQuantityWithinAmountRange() {
	cheap := uuid.NewString()
	s.Require().NoError(s.items.Create(s.ctx, domain.Item{UUID: cheap, Name: "Cheap", Price: decimal.RequireFromString("0.01")}))

	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(cheap, domain.MaxQuantity))
	s.Require().NoError(err)
	s.Equal(int64(domain.MaxQuantity), order.Items[0].Quantity)
	s.Equal("21474836.47", order.TotalPrice.String())
}

func (s *StoreSuite) TestCreateCanonicalizesUUIDs() {
	order, err := s.store.Create(s.ctx, strings.ToUpper(s.userUUID), s.lines(
		"{"+strings.ToUpper(s.item1UUID)+"}", 1,
		"urn:uuid:"+s.item2UUID, 1,
	))
	s.Require().NoError(err)
	s.Equal(s.userUUID, order.UserUUID)
	s.Require().Len(order.Items, 2)
	s.Equal(s.item1UUID, order.Items[0].ItemUUID)
	s.Equal(s.item2UUID, order.Items[1].ItemUUID)

	got, err := s.store.Get(s.ctx, strings.ToUpper(order.UUID))
	s.Require().NoError(err)
	s.Equal(order.UUID, got.UUID)

	s.Require().NoError(s.store.Delete(s.ctx, strings.ToUpper(order.UUID)))
	s.Equal(0, s.countOrders())
}

func (s *StoreSuite) TestUpdateReplacesItems() {
	first, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 1))
	s.Require().NoError(err)
	second, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 1))
	s.Require().NoError(err)

	updated, err := s.store.Update(s.ctx, first.UUID, domain.OrderUpdate{
		Items:         s.lines(s.item2UUID, 2),
		ItemsProvided: true,
	})
	s.Require().NoError(err)
	s.True(updated.TotalPrice.Equal(decimal.NewFromInt(20)))
	s.Require().Len(updated.Items, 1)
	s.Equal(s.item2UUID, updated.Items[0].ItemUUID)
	s.Equal(first.UserUUID, updated.UserUUID)

	untouched, err := s.store.Get(s.ctx, second.UUID)
	s.Require().NoError(err)
	s.Equal(second.View(), untouched.View())
}

func (s *StoreSuite) TestUpdateWithoutItemsReturnsOrderUnchanged() {
	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 3))
	s.Require().NoError(err)

	got, err := s.store.Update(s.ctx, order.UUID, domain.OrderUpdate{})
	s.Require().NoError(err)
	s.Equal(order.View(), got.View())
}

func (s *StoreSuite) TestUpdateFailures() {
	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 1))
	s.Require().NoError(err)

	tests := []struct {
		name    string
		target  string
		upd     domain.OrderUpdate
		wantErr error
	}{
		{
			name:    "unknown order",
			target:  uuid.NewString(),
			upd:     domain.OrderUpdate{Items: s.lines(s.item1UUID, 1), ItemsProvided: true},
			wantErr: domain.ErrOrderNotFound,
		},
		{
			name:    "unknown order wins over immutable fields",
			target:  uuid.NewString(),
			upd:     domain.OrderUpdate{ChangesUUID: true},
			wantErr: domain.ErrOrderNotFound,
		},
		{name: "changes uuid", target: order.UUID, upd: domain.OrderUpdate{ChangesUUID: true}, wantErr: domain.ErrUUIDImmutable},
		{name: "changes user", target: order.UUID, upd: domain.OrderUpdate{ChangesUser: true}, wantErr: domain.ErrUserImmutable},
		{name: "empty items", target: order.UUID, upd: domain.OrderUpdate{ItemsProvided: true}, wantErr: domain.ErrItemsEmpty},
		{
			name:    "unknown item",
			target:  order.UUID,
			upd:     domain.OrderUpdate{Items: s.lines(uuid.NewString(), 1), ItemsProvided: true},
			wantErr: domain.ErrItemNotFound,
		},
		{
			name:    "quantity above int32",
			target:  order.UUID,
			upd:     domain.OrderUpdate{Items: s.lines(s.item1UUID, domain.MaxQuantity+1), ItemsProvided: true},
			wantErr: domain.ErrQuantityInvalid,
		},
		{
			name:    "total out of range",
			target:  order.UUID,
			upd:     domain.OrderUpdate{Items: s.lines(s.item1UUID, 999_999_999, s.item2UUID, 2), ItemsProvided: true},
			wantErr: domain.ErrAmountOutOfRange,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.store.Update(s.ctx, tt.target, tt.upd)
			s.Require().Error(err)
			s.ErrorIs(err, tt.wantErr)

			stored, getErr := s.store.Get(s.ctx, order.UUID)
			s.Require().NoError(getErr)
			s.Equal(order.View(), stored.View(), "failed update must not change the order")
		})
	}
}

func (s *StoreSuite) TestDelete() {
	first, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 1))
	s.Require().NoError(err)
	second, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 1))
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(s.ctx, first.UUID))

	_, err = s.store.Get(s.ctx, first.UUID)
	s.ErrorIs(err, domain.ErrOrderNotFound)

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(second.UUID, all[0].UUID)

	err = s.store.Delete(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.ErrOrderNotFound)
	s.True(domain.IsNotFound(err))
	s.Equal(1, s.countOrders())
}

func (s *StoreSuite) TestLifecycleEmitsOutboxEvents() {
	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 2, s.item2UUID, 1))
	s.Require().NoError(err)
	_, err = s.store.Update(s.ctx, order.UUID, domain.OrderUpdate{Items: s.lines(s.item2UUID, 2), ItemsProvided: true})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Delete(s.ctx, order.UUID))

	pending, err := s.outbox.PullPending(10)
	s.Require().NoError(err)
	s.Require().Len(pending, 3)

	wantTypes := []string{domain.EventOrderCreated, domain.EventOrderUpdated, domain.EventOrderDeleted}
	for i, msg := range pending {
		s.Equal(wantTypes[i], msg.EventType)
		s.Equal(order.UUID, msg.AggregateID)
		s.Equal(domain.AggregateOrder, msg.AggregateType)
	}

	var created domain.OrderEvent
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &created))
	s.Equal(order.UUID, created.Order.UUID)
	s.Len(created.Order.Items, 2)
}

// Сценарий из описания продукта: создание, замена позиций, удаление.
func (s *StoreSuite) TestScenario() {
	order, err := s.store.Create(s.ctx, s.userUUID, s.lines(s.item1UUID, 2, s.item2UUID, 1))
	s.Require().NoError(err)
	s.True(order.TotalPrice.Equal(decimal.NewFromInt(30)))
	s.Len(order.Items, 2)

	updated, err := s.store.Update(s.ctx, order.UUID, domain.OrderUpdate{Items: s.lines(s.item2UUID, 2), ItemsProvided: true})
	s.Require().NoError(err)
	s.True(updated.TotalPrice.Equal(decimal.NewFromInt(20)))
	s.Require().Len(updated.Items, 1)
	s.Equal(s.item2UUID, updated.Items[0].ItemUUID)

	s.Require().NoError(s.store.Delete(s.ctx, order.UUID))
	s.Equal(0, s.countOrders())
}

type failingOutbox struct {
	memory.OutboxRepository
}

func (f *failingOutbox) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox is down")
}

func TestStore_OutboxFailureDoesNotFailCreate(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	items := memory.NewItemRepository()
	userUUID, itemUUID := uuid.NewString(), uuid.NewString()
	require.NoError(t, users.Create(ctx, domain.User{UUID: userUUID, Email: "a@b.c"}))
	require.NoError(t, items.Create(ctx, domain.Item{UUID: itemUUID, Price: decimal.NewFromInt(5)}))

	store := orders.NewStore(memory.NewOrderRepository(), users, items, orders.WithOutbox(&failingOutbox{}))

	order, err := store.Create(ctx, userUUID, []domain.LineRequest{{ItemUUID: itemUUID, Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(10)))
}

type brokenOrderRepository struct {
	domain.OrderRepository
}

func (brokenOrderRepository) List(context.Context) ([]domain.Order, error) {
	return nil, errors.New("connection reset")
}

func (brokenOrderRepository) Get(context.Context, string) (domain.Order, error) {
	return domain.Order{}, errors.New("connection reset")
}

func TestStore_InternalErrorsAreNotClassified(t *testing.T) {
	store := orders.NewStore(brokenOrderRepository{}, memory.NewUserRepository(), memory.NewItemRepository())

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
	assert.False(t, domain.IsNotFound(err))

	err = store.Delete(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.False(t, domain.IsNotFound(err))
	assert.Contains(t, err.Error(), "delete order")
}

func TestStore_UsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	items := memory.NewItemRepository()
	userUUID, itemUUID := uuid.NewString(), uuid.NewString()
	require.NoError(t, users.Create(ctx, domain.User{UUID: userUUID, Email: "a@b.c"}))
	require.NoError(t, items.Create(ctx, domain.Item{UUID: itemUUID, Price: decimal.NewFromInt(5)}))

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := orders.NewStore(memory.NewOrderRepository(), users, items, orders.WithClock(func() time.Time { return fixed }))

	order, err := store.Create(ctx, userUUID, []domain.LineRequest{{ItemUUID: itemUUID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, fixed, order.CreatedAt)
	assert.Equal(t, fixed, order.UpdatedAt)
}
