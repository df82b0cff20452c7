package command_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice-service/internal/app"
	handler "backoffice-service/internal/handlers/command"
	"backoffice-service/internal/domain/customer"
	xerrors "backoffice-service/internal/pkg/errors"
	"backoffice-service/internal/pkg/response"
	"backoffice-service/internal/pkg/session"
	service "backoffice-service/internal/service/command"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCustomerRepo struct {
	customers map[string]*customer.Customer
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	if c, ok := s.customers[id]; ok {
		return c, nil
	}
	return nil, xerrors.ErrNotFound
}

func (s *stubCustomerRepo) FindByNameCaseInsensitive(ctx context.Context, name string) (*customer.Customer, error) {
	for _, c := range s.customers {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *stubCustomerRepo) Create(ctx context.Context, c *customer.Customer) error {
	s.customers[c.ID] = c
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, id string, fields customer.UpdateFields) (*customer.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return c, nil
}

func (s *stubCustomerRepo) Delete(ctx context.Context, id string) error {
	delete(s.customers, id)
	return nil
}

func (s *stubCustomerRepo) ListAllWithOrderCounts(ctx context.Context) ([]customer.CustomerWithOrderCount, error) {
	var out []customer.CustomerWithOrderCount
	for _, c := range s.customers {
		out = append(out, customer.CustomerWithOrderCount{Customer: *c})
	}
	return out, nil
}

type stubOrderRepo struct{}

func (s *stubOrderRepo) FindByCustomerID(ctx context.Context, customerID string) ([]customer.Order, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewMemoryStore(time.Hour, time.Hour, zap.NewNop())
	t.Cleanup(store.Close)

	repo := &stubCustomerRepo{customers: map[string]*customer.Customer{
		"c1": {ID: "c1", Name: "Alice"},
	}}
	engine := service.NewEngine(repo, &stubOrderRepo{}, store, zap.NewNop())

	r := gin.New()
	app.SetupRouter(r, &app.Handlers{
		CommandHandler: handler.NewCommandHandler(engine, zap.NewNop()),
	})
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCommandEndpointRejectsBadBody(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/command", `{"conversationId": null}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/command", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandEndpointListCustomers(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/command", `{"text": "list customers"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)

	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, data["response"], "Alice")
}

func TestCommandEndpointDeleteThenConfirm(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/command", `{"text": "delete customer Alice"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["needsConfirmation"])
	convID, _ := data["conversationId"].(string)
	require.NotEmpty(t, convID)

	w = doJSON(t, r, http.MethodPost, "/api/v1/command/confirm",
		fmt.Sprintf(`{"conversationId": %q, "confirmed": true}`, convID))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok = body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, data["response"], "Deleted")
}

func TestConfirmEndpointExpiredConversation(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/command/confirm",
		`{"conversationId": "conv_0_GONE", "confirmed": true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "expired")
}

func TestConfirmEndpointRejectsMissingConfirmedFlag(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/command/confirm",
		`{"conversationId": "conv_0_GONE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/command/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status              string   `json:"status"`
		ActiveConversations []string `json:"activeConversations"`
		TotalConversations  int      `json:"totalConversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.TotalConversations)
	assert.NotNil(t, body.ActiveConversations)
}
