package command

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"backoffice-service/internal/domain/conversation"
	"backoffice-service/internal/domain/customer"
	xerrors "backoffice-service/internal/pkg/errors"
	"backoffice-service/internal/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]*customer.Customer
	listErr   error
	deleted   []string
}

func newFakeCustomerRepo(customers ...*customer.Customer) *fakeCustomerRepo {
	repo := &fakeCustomerRepo{customers: make(map[string]*customer.Customer)}
	for _, c := range customers {
		repo.customers[c.ID] = c
	}
	return repo
}

func (f *fakeCustomerRepo) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeCustomerRepo) FindByNameCaseInsensitive(ctx context.Context, name string) (*customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if strings.EqualFold(c.Name, name) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeCustomerRepo) Create(ctx context.Context, c *customer.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *c
	f.customers[c.ID] = &copied
	return nil
}

func (f *fakeCustomerRepo) Update(ctx context.Context, id string, fields customer.UpdateFields) (*customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if fields.Name != nil {
		c.Name = *fields.Name
	}
	if fields.Email != nil {
		c.Email = fields.Email
	}
	if fields.Phone != nil {
		c.Phone = fields.Phone
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCustomerRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.customers[id]; !ok {
		return xerrors.ErrNotFound
	}
	delete(f.customers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCustomerRepo) ListAllWithOrderCounts(ctx context.Context) ([]customer.CustomerWithOrderCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []customer.CustomerWithOrderCount
	for _, c := range f.customers {
		out = append(out, customer.CustomerWithOrderCount{Customer: *c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeOrderRepo struct {
	orders map[string][]customer.Order
}

func (f *fakeOrderRepo) FindByCustomerID(ctx context.Context, customerID string) ([]customer.Order, error) {
	return f.orders[customerID], nil
}

func newTestEngine(t *testing.T, repo *fakeCustomerRepo) (*Engine, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour, time.Hour, zap.NewNop())
	t.Cleanup(store.Close)
	engine := NewEngine(repo, &fakeOrderRepo{orders: map[string][]customer.Order{}}, store, zap.NewNop())
	return engine, store
}

func boolPtr(b bool) *bool { return &b }

func TestCreateFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo()
	engine, store := newTestEngine(t, repo)

	res, err := engine.HandleCommand(ctx, "create customer Jane", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.ConversationID)
	assert.Contains(t, res.Response, "email")

	convID := res.ConversationID

	res, err = engine.HandleCommand(ctx, "skip", convID)
	require.NoError(t, err)
	assert.Contains(t, res.Response, "phone")
	require.NotNil(t, res.CustomerData)
	assert.Nil(t, res.CustomerData.Email)

	res, err = engine.HandleCommand(ctx, "skip", convID)
	require.NoError(t, err)
	assert.True(t, res.NeedsConfirmation)
	require.NotNil(t, res.CustomerData)
	assert.Nil(t, res.CustomerData.Phone)

	confirm, err := engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
		ConversationID: convID,
		Confirmed:      boolPtr(true),
	})
	require.NoError(t, err)
	assert.Contains(t, confirm.Response, "Jane")
	assert.Contains(t, confirm.Response, "c1")

	created, err := repo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", created.Name)
	assert.Nil(t, created.Email)
	assert.Nil(t, created.Phone)

	// The conversation is gone: a second confirm fails.
	_, err = engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
		ConversationID: convID,
		Confirmed:      boolPtr(true),
	})
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)

	ids, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConfirmCreateDuplicateNameAborts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo(&customer.Customer{ID: "c1", Name: "jane"})
	engine, _ := newTestEngine(t, repo)

	res, err := engine.HandleCommand(ctx, "create customer Jane", "")
	require.NoError(t, err)
	convID := res.ConversationID

	_, err = engine.HandleCommand(ctx, "skip", convID)
	require.NoError(t, err)
	_, err = engine.HandleCommand(ctx, "skip", convID)
	require.NoError(t, err)

	confirm, err := engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
		ConversationID: convID,
		Confirmed:      boolPtr(true),
	})
	require.NoError(t, err)
	assert.Contains(t, confirm.Response, "already exists")
	assert.Contains(t, confirm.Response, "c1")

	// Zero writes: the only record is still the pre-existing one.
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.customers, 1)
	assert.Equal(t, "jane", repo.customers["c1"].Name)
}

func TestEditResolvesByIDThenName(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo(
		&customer.Customer{ID: "c1", Name: "Alice"},
		&customer.Customer{ID: "c2", Name: "Bob"},
	)
	engine, store := newTestEngine(t, repo)

	res, err := engine.HandleCommand(ctx, "edit customer c1", "")
	require.NoError(t, err)
	require.NotNil(t, res.CustomerData)
	assert.Equal(t, "c1", res.CustomerData.ID)

	res, err = engine.HandleCommand(ctx, "edit customer bob", "")
	require.NoError(t, err)
	require.NotNil(t, res.CustomerData)
	assert.Equal(t, "c2", res.CustomerData.ID)

	// Neither id nor name: a "not found" reply and no conversation.
	before, err := store.Active(ctx)
	require.NoError(t, err)

	res, err = engine.HandleCommand(ctx, "edit customer nobody", "")
	require.NoError(t, err)
	assert.Contains(t, res.Response, "couldn't find")
	assert.Empty(t, res.ConversationID)

	after, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestEditFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	oldEmail := "bob@old.example"
	repo := newFakeCustomerRepo(&customer.Customer{ID: "c2", Name: "Bob", Email: &oldEmail})
	engine, _ := newTestEngine(t, repo)

	res, err := engine.HandleCommand(ctx, "edit customer Bob", "")
	require.NoError(t, err)
	convID := res.ConversationID
	require.NotEmpty(t, convID)

	res, err = engine.HandleCommand(ctx, "email", convID)
	require.NoError(t, err)
	assert.Equal(t, "email", res.FieldToEdit)

	res, err = engine.HandleCommand(ctx, "bob@new.example", convID)
	require.NoError(t, err)
	assert.True(t, res.NeedsConfirmation)
	assert.Contains(t, res.Response, "bob@old.example")
	assert.Contains(t, res.Response, "bob@new.example")

	confirm, err := engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
		ConversationID: convID,
		Confirmed:      boolPtr(true),
	})
	require.NoError(t, err)
	assert.Contains(t, confirm.Response, "bob@new.example")

	updated, err := repo.FindByID(ctx, "c2")
	require.NoError(t, err)
	require.NotNil(t, updated.Email)
	assert.Equal(t, "bob@new.example", *updated.Email)
	// Only the selected field changed.
	assert.Equal(t, "Bob", updated.Name)
}

func TestDeleteFlowConfirmAndCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed delete removes the customer", func(t *testing.T) {
		repo := newFakeCustomerRepo(&customer.Customer{ID: "c1", Name: "Alice"})
		engine, _ := newTestEngine(t, repo)

		res, err := engine.HandleCommand(ctx, "delete customer Alice", "")
		require.NoError(t, err)
		assert.True(t, res.NeedsConfirmation)
		require.NotEmpty(t, res.ConversationID)

		confirm, err := engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
			ConversationID: res.ConversationID,
			Confirmed:      boolPtr(true),
		})
		require.NoError(t, err)
		assert.Contains(t, confirm.Response, "Deleted")
		assert.Equal(t, []string{"c1"}, repo.deleted)
	})

	t.Run("cancellation is success and mutates nothing", func(t *testing.T) {
		repo := newFakeCustomerRepo(&customer.Customer{ID: "c1", Name: "Alice"})
		engine, store := newTestEngine(t, repo)

		res, err := engine.HandleCommand(ctx, "delete customer c1", "")
		require.NoError(t, err)

		confirm, err := engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
			ConversationID: res.ConversationID,
			Confirmed:      boolPtr(false),
		})
		require.NoError(t, err)
		assert.Contains(t, confirm.Response, "cancelled")
		assert.Empty(t, repo.deleted)

		ids, err := store.Active(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestContinuationHeuristic(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo(&customer.Customer{ID: "c1", Name: "Alice"})
	engine, store := newTestEngine(t, repo)

	t.Run("edit flow keeps context for field names", func(t *testing.T) {
		res, err := engine.HandleCommand(ctx, "edit customer c1", "")
		require.NoError(t, err)
		convID := res.ConversationID

		res, err = engine.HandleCommand(ctx, "email", convID)
		require.NoError(t, err)
		assert.Equal(t, convID, res.ConversationID)
		assert.Equal(t, "email", res.FieldToEdit)
	})

	t.Run("unrelated command clears a create dialogue", func(t *testing.T) {
		res, err := engine.HandleCommand(ctx, "create customer Jane", "")
		require.NoError(t, err)
		convID := res.ConversationID

		_, err = engine.HandleCommand(ctx, "skip", convID)
		require.NoError(t, err)
		_, err = engine.HandleCommand(ctx, "skip", convID)
		require.NoError(t, err)

		// Now in the confirm-details state; "list customers" is not a
		// continuation token, so the dialogue is discarded and the message
		// parses fresh.
		res, err = engine.HandleCommand(ctx, "list customers", convID)
		require.NoError(t, err)
		assert.Equal(t, string(conversation.IntentListCustomers), res.ActionType)
		assert.Empty(t, res.ConversationID)

		stored, err := store.Get(ctx, convID)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}

func TestListAndViewAreSingleTurn(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo(
		&customer.Customer{ID: "c1", Name: "Alice"},
		&customer.Customer{ID: "c2", Name: "Bob"},
	)
	engine, store := newTestEngine(t, repo)

	res, err := engine.HandleCommand(ctx, "list customers", "")
	require.NoError(t, err)
	assert.Contains(t, res.Response, "1. Alice (c1)")
	assert.Contains(t, res.Response, "2. Bob (c2)")
	assert.Empty(t, res.ConversationID)

	res, err = engine.HandleCommand(ctx, "view customer c2", "")
	require.NoError(t, err)
	assert.Contains(t, res.Response, "Bob")
	assert.Empty(t, res.ConversationID)

	ids, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConfirmExpiredConversation(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, newFakeCustomerRepo())

	_, err := engine.ConfirmCommand(ctx, &conversation.ConfirmRequest{
		ConversationID: "conv_0_UNKNOWN",
		Confirmed:      boolPtr(true),
	})
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestNextCustomerIDFallsBackOnScanFailure(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo()
	repo.listErr = assert.AnError
	engine, _ := newTestEngine(t, repo)

	id := engine.nextCustomerID(ctx)
	assert.Regexp(t, `^c\d{10,}$`, id)
}

func TestNextCustomerIDSkipsNonSequentialIDs(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCustomerRepo(
		&customer.Customer{ID: "c2", Name: "Alice"},
		&customer.Customer{ID: "legacy-7", Name: "Bob"},
	)
	engine, _ := newTestEngine(t, repo)

	assert.Equal(t, "c3", engine.nextCustomerID(ctx))
}
