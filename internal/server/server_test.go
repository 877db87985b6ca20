package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

func testConfig() config.Config {
	return config.Config{
		AppName:         "WalletLedgerTest",
		AppEnv:          "development",
		Port:            "0",
		JWTSecret:       "test-secret",
		TokenTTL:        time.Hour,
		LockTimeout:     time.Second,
		PinMaxAttempts:  3,
		PinLockout:      time.Minute,
		PendingMaxAge:   time.Minute,
		SweepInterval:   time.Minute,
		DefaultCurrency: "USD",
		Location:        time.UTC,
		MoneyRateLimit:  10,
		IdempotencyTTL:  time.Minute,
	}
}

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()
	out := map[string]any{}
	status := c.into(method, path, token, body, &out)
	return status, out
}

func (c client) into(method, path, token string, body, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (c client) register(phone, name string) (token, account string) {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/api/v1/identity/register", "", map[string]string{
		"phone_number": phone,
		"full_name":    name,
	})
	require.Equal(c.t, http.StatusCreated, status, body)
	user := body["user"].(map[string]any)
	return body["access_token"].(string), user["account_number"].(string)
}

func TestServerTransferFlow(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	c := client{t: t, app: srv.App()}

	alice, _ := c.register("+242060000001", "Alice")
	bob, bobAccount := c.register("+242060000002", "Bob")

	status, body := c.do(http.MethodPost, "/api/v1/transactions/add-money", alice, map[string]any{
		"amount":         "500",
		"payment_method": "card",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "500.00", body["new_balance"])

	status, body = c.do(http.MethodPost, "/api/v1/transactions/send", alice, map[string]any{
		"recipient_account": bobAccount,
		"amount":            "120.50",
		"narration":         "rent",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "379.50", body["new_balance"])
	assert.Equal(t, "Bob", body["recipient_name"])
	reference := body["transaction"].(map[string]any)["reference"].(string)

	status, body = c.do(http.MethodGet, "/api/v1/wallet/balance", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "120.50", body["balance"])

	status, body = c.do(http.MethodGet, "/api/v1/transactions/history", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = c.do(http.MethodGet, "/api/v1/transactions/"+reference, alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "debit", body["type"])

	status, _ = c.do(http.MethodGet, "/api/v1/transactions/"+reference, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	var contacts []map[string]any
	status = c.into(http.MethodGet, "/api/v1/beneficiaries", alice, nil, &contacts)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Bob", contacts[0]["beneficiary_name"])
	assert.Equal(t, "120.5", contacts[0]["total_sent"])

	status, body = c.do(http.MethodGet, "/api/v1/dashboard", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["recent_transactions"], 2)
}

func TestServerErrorEnvelope(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	c := client{t: t, app: srv.App()}

	alice, _ := c.register("+242060000011", "Alice")
	_, bobAccount := c.register("+242060000012", "Bob")

	status, body := c.do(http.MethodPost, "/api/v1/transactions/send", alice, map[string]any{
		"recipient_account": bobAccount,
		"amount":            "10",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_funds", body["code"])

	status, body = c.do(http.MethodGet, "/api/v1/wallet/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["code"])

	status, body = c.do(http.MethodPost, "/api/v1/identity/register", "", map[string]string{"phone_number": "+242060000011"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "user_exists", body["code"])
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("pq: connection reset") })
	app.Get("/frozen", func(c *fiber.Ctx) error { return wallet.ErrFrozen })

	c := client{t: t, app: app}
	status, body := c.do(http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["error"])

	status, body = c.do(http.MethodGet, "/frozen", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "wallet_frozen", body["code"])
}

func TestServerTransferChecksTransactionPin(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	c := client{t: t, app: srv.App()}

	alice, _ := c.register("+242060000021", "Alice")
	bob, bobAccount := c.register("+242060000022", "Bob")

	status, body := c.do(http.MethodPost, "/api/v1/transactions/add-money", alice, map[string]any{
		"amount":         "500",
		"payment_method": "card",
	})
	require.Equal(t, http.StatusOK, status, body)
	status, body = c.do(http.MethodPost, "/api/v1/security/pin", alice, map[string]string{
		"pin":         "1234",
		"confirm_pin": "1234",
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = c.do(http.MethodPost, "/api/v1/transactions/send", alice, map[string]any{
		"recipient_account": bobAccount,
		"amount":            "50",
		"transaction_pin":   "0000",
	})
	assert.Equal(t, http.StatusUnauthorized, status, body)
	assert.Equal(t, "pin_invalid", body["code"])

	status, body = c.do(http.MethodGet, "/api/v1/wallet/balance", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.00", body["balance"])

	status, body = c.do(http.MethodPost, "/api/v1/transactions/send", alice, map[string]any{
		"recipient_account": bobAccount,
		"amount":            "50",
		"transaction_pin":   "1234",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "450.00", body["new_balance"])
}

func TestServerShutdownStopsSweeper(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)
	srv.startSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case <-srv.done:
	default:
		t.Fatalf("sweeper still running after shutdown")
	}
}

func TestServerShutdownWithoutListen(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, ctx.Err(), "shutdown waited for a sweeper that never ran")

	// A late Listen must not start the sweeper again.
	srv.startSweeper()
}
