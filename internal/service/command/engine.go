// internal/service/command/engine.go
package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"backoffice-service/internal/domain/conversation"
	"backoffice-service/internal/domain/customer"
	xerrors "backoffice-service/internal/pkg/errors"
	"backoffice-service/internal/pkg/session"

	"go.uber.org/zap"
)

// CustomerRepository is the collaborator the engine resolves and mutates
// customers through. Implementations return xerrors.ErrNotFound when an id or
// name matches nothing.
type CustomerRepository interface {
	FindByID(ctx context.Context, id string) (*customer.Customer, error)
	FindByNameCaseInsensitive(ctx context.Context, name string) (*customer.Customer, error)
	Create(ctx context.Context, c *customer.Customer) error
	Update(ctx context.Context, id string, fields customer.UpdateFields) (*customer.Customer, error)
	// Delete removes the customer and cascades to their orders.
	Delete(ctx context.Context, id string) error
	ListAllWithOrderCounts(ctx context.Context) ([]customer.CustomerWithOrderCount, error)
}

// OrderRepository is consumed read-only, for the "view customer" summary.
type OrderRepository interface {
	FindByCustomerID(ctx context.Context, customerID string) ([]customer.Order, error)
}

// continuationPattern is the allow-list deciding whether a message continues
// an existing dialogue. Known imprecision, preserved on purpose: a free-text
// product name like "c1" matches the digits/allow-list shape and is treated
// as a continuation token even when the operator meant a fresh command.
var continuationPattern = regexp.MustCompile(`(?i)^(?:skip|yes|no|cancel|name|email|phone|\d+|[^\s@]+@[^\s@]+\.[^\s@]+)$`)

var sequentialIDPattern = regexp.MustCompile(`^c(\d+)$`)

// Engine orchestrates the conversational command subsystem: it decides
// continuation-vs-new-command, runs the parser or the flow machine, persists
// dialogue state, resolves targets through the repository and executes
// confirmed mutations.
type Engine struct {
	parser    *IntentParser
	customers CustomerRepository
	orders    OrderRepository
	sessions  session.Store
	logger    *zap.Logger
}

func NewEngine(customers CustomerRepository, orders OrderRepository, sessions session.Store, logger *zap.Logger) *Engine {
	return &Engine{
		parser:    NewIntentParser(),
		customers: customers,
		orders:    orders,
		sessions:  sessions,
		logger:    logger,
	}
}

// HandleCommand processes one free-text message, possibly inside an existing
// conversation.
func (e *Engine) HandleCommand(ctx context.Context, text, conversationID string) (*conversation.CommandResult, error) {
	var convCtx *conversation.Conversation

	if conversationID != "" {
		existing, err := e.sessions.Get(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		if existing != nil {
			if e.looksLikeContinuation(text, existing) {
				convCtx = existing
			} else {
				// The operator issued a brand-new command while an unrelated
				// dialogue was still live: discard the old one.
				if err := e.sessions.Delete(ctx, conversationID); err != nil {
					return nil, fmt.Errorf("failed to discard stale conversation: %w", err)
				}
				e.logger.Info("discarded stale conversation",
					zap.String("conversation_id", conversationID),
					zap.String("flow_state", string(existing.FlowState)),
				)
			}
		}
	}

	plan := e.parser.Parse(text, convCtx)

	switch plan.Intent {
	case conversation.IntentCreateCustomer:
		return e.handleCreate(ctx, plan, convCtx, conversationID)
	case conversation.IntentEditCustomer:
		return e.handleEdit(ctx, plan, convCtx, conversationID)
	case conversation.IntentDeleteCustomer:
		return e.handleDelete(ctx, plan, conversationID)
	case conversation.IntentListCustomers:
		return e.handleList(ctx)
	case conversation.IntentViewCustomer:
		return e.handleView(ctx, plan)
	default:
		// "Let's start over": a dialogue that produced an unknown plan is
		// unrecoverable, drop it.
		if convCtx != nil {
			if err := e.sessions.Delete(ctx, convCtx.ID); err != nil {
				return nil, fmt.Errorf("failed to reset conversation: %w", err)
			}
		}
		return &conversation.CommandResult{
			Response:   plan.Response,
			ActionType: string(conversation.IntentUnknown),
		}, nil
	}
}

func (e *Engine) looksLikeContinuation(text string, conv *conversation.Conversation) bool {
	return continuationPattern.MatchString(strings.TrimSpace(text)) || conv.FlowState.IsEditFlow()
}

func (e *Engine) handleCreate(ctx context.Context, plan *conversation.Plan, convCtx *conversation.Conversation, conversationID string) (*conversation.CommandResult, error) {
	id := conversationID
	createdAt := time.Now()
	if convCtx != nil {
		id = convCtx.ID
		createdAt = convCtx.CreatedAt
	}
	if id == "" {
		id = session.GenerateID()
	}

	conv := &conversation.Conversation{
		ID:                id,
		FlowState:         plan.FlowState,
		Intent:            conversation.IntentCreateCustomer,
		ActionType:        conversation.IntentCreateCustomer,
		CustomerData:      plan.CustomerData,
		NeedsConfirmation: plan.NeedsConfirmation,
		CreatedAt:         createdAt,
	}
	if err := e.sessions.Set(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to persist conversation: %w", err)
	}

	return &conversation.CommandResult{
		Response:          plan.Response,
		NeedsConfirmation: plan.NeedsConfirmation,
		ActionType:        string(conversation.IntentCreateCustomer),
		ConversationID:    id,
		CustomerData:      &conv.CustomerData,
	}, nil
}

func (e *Engine) handleEdit(ctx context.Context, plan *conversation.Plan, convCtx *conversation.Conversation, conversationID string) (*conversation.CommandResult, error) {
	// Continuing an edit dialogue: the target was resolved on the first turn.
	if convCtx != nil && convCtx.CustomerData.ID != "" {
		conv := *convCtx
		conv.FlowState = plan.FlowState
		conv.CustomerData = plan.CustomerData
		conv.NeedsConfirmation = plan.NeedsConfirmation
		if plan.FieldToEdit != "" {
			conv.FieldToEdit = plan.FieldToEdit
		}
		if err := e.sessions.Set(ctx, &conv); err != nil {
			return nil, fmt.Errorf("failed to persist conversation: %w", err)
		}

		return &conversation.CommandResult{
			Response:          plan.Response,
			NeedsConfirmation: plan.NeedsConfirmation,
			ActionType:        string(conversation.IntentEditCustomer),
			ConversationID:    conv.ID,
			CustomerData:      &conv.CustomerData,
			FieldToEdit:       conv.FieldToEdit,
		}, nil
	}

	target, err := e.resolveCustomer(ctx, plan.Identifier)
	if errors.Is(err, xerrors.ErrNotFound) {
		return &conversation.CommandResult{
			Response:   fmt.Sprintf("I couldn't find a customer matching %q.", plan.Identifier),
			ActionType: string(conversation.IntentEditCustomer),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	data := snapshotCustomer(target)
	original := data

	id := conversationID
	if id == "" {
		id = session.GenerateID()
	}
	conv := &conversation.Conversation{
		ID:                   id,
		FlowState:            plan.FlowState,
		Intent:               conversation.IntentEditCustomer,
		ActionType:           conversation.IntentEditCustomer,
		CustomerData:         data,
		OriginalCustomerData: &original,
		CreatedAt:            time.Now(),
	}
	if err := e.sessions.Set(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to persist conversation: %w", err)
	}

	return &conversation.CommandResult{
		Response:       fmt.Sprintf("Editing customer %s (%s). Which field would you like to change: name, email or phone?", target.Name, target.ID),
		ActionType:     string(conversation.IntentEditCustomer),
		ConversationID: id,
		CustomerData:   &conv.CustomerData,
	}, nil
}

func (e *Engine) handleDelete(ctx context.Context, plan *conversation.Plan, conversationID string) (*conversation.CommandResult, error) {
	target, err := e.resolveCustomer(ctx, plan.Identifier)
	if errors.Is(err, xerrors.ErrNotFound) {
		return &conversation.CommandResult{
			Response:   fmt.Sprintf("I couldn't find a customer matching %q.", plan.Identifier),
			ActionType: string(conversation.IntentDeleteCustomer),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	id := conversationID
	if id == "" {
		id = session.GenerateID()
	}
	conv := &conversation.Conversation{
		ID:                id,
		FlowState:         conversation.FlowDeleteConfirm,
		Intent:            conversation.IntentDeleteCustomer,
		ActionType:        conversation.IntentDeleteCustomer,
		CustomerData:      snapshotCustomer(target),
		NeedsConfirmation: true,
		CreatedAt:         time.Now(),
	}
	if err := e.sessions.Set(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to persist conversation: %w", err)
	}

	return &conversation.CommandResult{
		Response:          fmt.Sprintf("Are you sure you want to delete customer %s (%s)? This will also delete all of their orders.", target.Name, target.ID),
		NeedsConfirmation: true,
		ActionType:        string(conversation.IntentDeleteCustomer),
		ConversationID:    id,
		CustomerData:      &conv.CustomerData,
	}, nil
}

func (e *Engine) handleList(ctx context.Context) (*conversation.CommandResult, error) {
	customers, err := e.customers.ListAllWithOrderCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	if len(customers) == 0 {
		return &conversation.CommandResult{
			Response:   "There are no customers yet.",
			ActionType: string(conversation.IntentListCustomers),
		}, nil
	}

	var b strings.Builder
	b.WriteString("Here are your customers:\n")
	for i, c := range customers {
		fmt.Fprintf(&b, "%d. %s (%s): %d %s\n", i+1, c.Name, c.ID, c.OrderCount, plural(c.OrderCount, "order"))
	}

	return &conversation.CommandResult{
		Response:   strings.TrimRight(b.String(), "\n"),
		ActionType: string(conversation.IntentListCustomers),
		Data:       customers,
	}, nil
}

func (e *Engine) handleView(ctx context.Context, plan *conversation.Plan) (*conversation.CommandResult, error) {
	target, err := e.resolveCustomer(ctx, plan.Identifier)
	if errors.Is(err, xerrors.ErrNotFound) {
		return &conversation.CommandResult{
			Response:   fmt.Sprintf("I couldn't find a customer matching %q.", plan.Identifier),
			ActionType: string(conversation.IntentViewCustomer),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	orders, err := e.orders.FindByCustomerID(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Customer %s (%s)\nEmail: %s\nPhone: %s\nOrders: %d",
		target.Name, target.ID, valueOrNone(target.Email), valueOrNone(target.Phone), len(orders))
	for _, o := range orders {
		fmt.Fprintf(&b, "\n- %s: %s, %.2f", o.ID, o.Status, o.Total)
	}

	return &conversation.CommandResult{
		Response:   b.String(),
		ActionType: string(conversation.IntentViewCustomer),
		Data:       customer.CustomerSummary{Customer: *target, Orders: orders},
	}, nil
}

// ConfirmCommand resumes a pending dialogue and performs the gated mutation.
//
// Two requests confirming the same conversation can interleave across the
// repository calls (the store is only read at the top), producing a double
// mutation or a not-found on the second delete. Known hazard of the design;
// a per-conversation lock would be needed to close it.
func (e *Engine) ConfirmCommand(ctx context.Context, req *conversation.ConfirmRequest) (*conversation.ConfirmResult, error) {
	conv, err := e.sessions.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, xerrors.ErrSessionExpired
	}

	if req.Confirmed == nil || !*req.Confirmed {
		if err := e.sessions.Delete(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("failed to delete conversation: %w", err)
		}
		return &conversation.ConfirmResult{Response: "Okay, cancelled. Nothing was changed."}, nil
	}

	switch conv.ActionType {
	case conversation.IntentCreateCustomer:
		return e.confirmCreate(ctx, conv)
	case conversation.IntentEditCustomer:
		return e.confirmEdit(ctx, conv)
	case conversation.IntentDeleteCustomer:
		return e.confirmDelete(ctx, conv)
	default:
		if err := e.sessions.Delete(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("unknown action type %q", conv.ActionType))
	}
}

func (e *Engine) confirmCreate(ctx context.Context, conv *conversation.Conversation) (*conversation.ConfirmResult, error) {
	// Re-check the name at confirmation time, not just at dialogue start:
	// two dialogues can be creating the same name concurrently.
	existing, err := e.customers.FindByNameCaseInsensitive(ctx, conv.CustomerData.Name)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate name: %w", err)
	}
	if existing != nil {
		if err := e.sessions.Delete(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("failed to delete conversation: %w", err)
		}
		return &conversation.ConfirmResult{
			Response: fmt.Sprintf("A customer named %q already exists (%s). Nothing was created.", existing.Name, existing.ID),
			Data:     existing,
		}, nil
	}

	created := &customer.Customer{
		ID:    e.nextCustomerID(ctx),
		Name:  conv.CustomerData.Name,
		Email: conv.CustomerData.Email,
		Phone: conv.CustomerData.Phone,
	}
	if err := e.customers.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	if err := e.sessions.Delete(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("failed to delete conversation: %w", err)
	}

	e.logger.Info("customer created via command",
		zap.String("customer_id", created.ID),
		zap.String("name", created.Name),
	)

	return &conversation.ConfirmResult{
		Response: fmt.Sprintf("Created customer %s (%s).", created.Name, created.ID),
		Data:     created,
	}, nil
}

func (e *Engine) confirmEdit(ctx context.Context, conv *conversation.Conversation) (*conversation.ConfirmResult, error) {
	field := conv.FieldToEdit
	// The dialogue-accumulated value, never a raw value from the request
	// body.
	newValue := conv.CustomerData.Field(field)

	var fields customer.UpdateFields
	switch field {
	case "name":
		fields.Name = &newValue
	case "email":
		fields.Email = &newValue
	case "phone":
		fields.Phone = &newValue
	default:
		if err := e.sessions.Delete(ctx, conv.ID); err != nil {
			return nil, fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("unknown field %q", field))
	}

	updated, err := e.customers.Update(ctx, conv.CustomerData.ID, fields)
	if errors.Is(err, xerrors.ErrNotFound) {
		if derr := e.sessions.Delete(ctx, conv.ID); derr != nil {
			return nil, fmt.Errorf("failed to delete conversation: %w", derr)
		}
		return &conversation.ConfirmResult{
			Response: fmt.Sprintf("Customer %s no longer exists. Nothing was changed.", conv.CustomerData.ID),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}

	if err := e.sessions.Delete(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("failed to delete conversation: %w", err)
	}

	oldValue := ""
	if conv.OriginalCustomerData != nil {
		oldValue = conv.OriginalCustomerData.Field(field)
	}

	e.logger.Info("customer updated via command",
		zap.String("customer_id", updated.ID),
		zap.String("field", field),
	)

	return &conversation.ConfirmResult{
		Response: fmt.Sprintf("Updated the %s of %s: %q is now %q.", field, updated.Name, oldValue, newValue),
		Data:     updated,
	}, nil
}

func (e *Engine) confirmDelete(ctx context.Context, conv *conversation.Conversation) (*conversation.ConfirmResult, error) {
	err := e.customers.Delete(ctx, conv.CustomerData.ID)
	if errors.Is(err, xerrors.ErrNotFound) {
		if derr := e.sessions.Delete(ctx, conv.ID); derr != nil {
			return nil, fmt.Errorf("failed to delete conversation: %w", derr)
		}
		return &conversation.ConfirmResult{
			Response: fmt.Sprintf("Customer %s was already deleted.", conv.CustomerData.ID),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete customer: %w", err)
	}

	if err := e.sessions.Delete(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("failed to delete conversation: %w", err)
	}

	e.logger.Info("customer deleted via command",
		zap.String("customer_id", conv.CustomerData.ID),
	)

	return &conversation.ConfirmResult{
		Response: fmt.Sprintf("Deleted customer %s (%s) and all of their orders.", conv.CustomerData.Name, conv.CustomerData.ID),
		Data:     conv.CustomerData,
	}, nil
}

// Health reports the live conversations (diagnostic, not load-bearing).
func (e *Engine) Health(ctx context.Context) (*conversation.HealthResult, error) {
	ids, err := e.sessions.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return &conversation.HealthResult{
		Status:              "ok",
		ActiveConversations: ids,
		TotalConversations:  len(ids),
	}, nil
}

// resolveCustomer tries the identifier as an exact id first, then as a
// case-insensitive exact name.
func (e *Engine) resolveCustomer(ctx context.Context, identifier string) (*customer.Customer, error) {
	identifier = strings.TrimSpace(identifier)

	c, err := e.customers.FindByID(ctx, identifier)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up customer by id: %w", err)
	}

	c, err = e.customers.FindByNameCaseInsensitive(ctx, identifier)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up customer by name: %w", err)
	}

	return nil, xerrors.ErrNotFound
}

// nextCustomerID allocates the next sequential "c<n>" id. If the scan itself
// fails it falls back to a timestamp-derived id rather than dead-ending the
// dialogue.
func (e *Engine) nextCustomerID(ctx context.Context) string {
	customers, err := e.customers.ListAllWithOrderCounts(ctx)
	if err != nil {
		e.logger.Warn("customer id scan failed, using timestamp fallback", zap.Error(err))
		return fmt.Sprintf("c%d", time.Now().UnixMilli())
	}

	highest := 0
	for _, c := range customers {
		if m := sequentialIDPattern.FindStringSubmatch(c.ID); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
				highest = n
			}
		}
	}

	return fmt.Sprintf("c%d", highest+1)
}

func snapshotCustomer(c *customer.Customer) conversation.CustomerData {
	data := conversation.CustomerData{ID: c.ID, Name: c.Name}
	if c.Email != nil {
		email := *c.Email
		data.Email = &email
	}
	if c.Phone != nil {
		phone := *c.Phone
		data.Phone = &phone
	}
	return data
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
