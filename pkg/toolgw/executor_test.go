package toolgw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Definition {
	return Definition{
		Name:        name,
		Description: "echo",
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			return Result{Status: "success", Payload: args}, nil
		},
	}
}

func TestExecutor_RegisterRejectsDuplicates(t *testing.T) {
	e := NewExecutor(time.Second)

	require.NoError(t, e.Register(echoTool("echo")))
	assert.Error(t, e.Register(echoTool("echo")))
	assert.True(t, e.Has("echo"))
	assert.False(t, e.Has("other"))
}

func TestExecutor_InvokeUnknownToolFails(t *testing.T) {
	e := NewExecutor(time.Second)

	res := e.Invoke(context.Background(), "ghost", nil)
	assert.False(t, res.Success())
	assert.Contains(t, res.Error, "unknown tool")
}

func TestExecutor_SchemaValidation(t *testing.T) {
	e := NewExecutor(time.Second)
	def := echoTool("lookup")
	def.Schema = credentialSchema(nil)
	require.NoError(t, e.Register(def))

	res := e.Invoke(context.Background(), "lookup", map[string]interface{}{
		"account_number": "12345678",
		"sort_code":      "112233",
	})
	assert.True(t, res.Success())

	res = e.Invoke(context.Background(), "lookup", map[string]interface{}{
		"account_number": "12",
		"sort_code":      "112233",
	})
	assert.False(t, res.Success())
	assert.Contains(t, res.Error, "invalid arguments")

	res = e.Invoke(context.Background(), "lookup", map[string]interface{}{
		"sort_code": "112233",
	})
	assert.False(t, res.Success())
}

func TestExecutor_TimeoutBecomesFailure(t *testing.T) {
	e := NewExecutor(50 * time.Millisecond)
	require.NoError(t, e.Register(Definition{
		Name: "slow",
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return Result{Status: "success"}, nil
			}
		},
	}))

	res := e.Invoke(context.Background(), "slow", nil)
	assert.False(t, res.Success())
	assert.Contains(t, res.Error, "timed out")
}

func TestExecutor_Definitions(t *testing.T) {
	e := NewExecutor(time.Second)
	require.NoError(t, e.Register(echoTool("a")))
	require.NoError(t, e.Register(echoTool("b")))

	defs := e.Definitions([]string{"a", "ghost", "b"})
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "b", defs[1].Name)
}

func TestHTTPBackend_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/check_balance", r.URL.Path)

		var req backendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "check_balance", req.ToolName)

		json.NewEncoder(w).Encode(Result{
			Status:  "success",
			Payload: map[string]interface{}{"balance": 5421.75},
		})
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL, time.Second)
	res, err := backend.Handler("check_balance")(context.Background(), map[string]interface{}{
		"account_number": "12345678",
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, 5421.75, res.Payload["balance"])
}

func TestHTTPBackend_BadStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, time.Second).Handler("check_balance")(context.Background(), nil)
	assert.ErrorContains(t, err, "502")
}

func TestRegisterHandoffTools_SynthesizesResults(t *testing.T) {
	e := NewExecutor(time.Second)
	require.NoError(t, RegisterHandoffTools(e, func(id string) string { return "transfer_to_" + id }, []string{"banking"}))

	res := e.Invoke(context.Background(), "transfer_to_banking", map[string]interface{}{"reason": "verified"})
	require.True(t, res.Success())
	assert.Equal(t, "banking", res.Payload["target"])
	assert.Equal(t, "verified", res.Payload["reason"])
}
