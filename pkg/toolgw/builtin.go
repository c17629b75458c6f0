package toolgw

import (
	"context"
	"fmt"
)

// Well-known tool names
const (
	ToolCheckBalance    = "check_balance"
	ToolGetTransactions = "get_transactions"
	ToolVerifyIdentity  = "verify_identity"
)

// credentialProperties is the shared argument shape for account-keyed
// tools: an 8 digit account number and a 6 digit sort code.
func credentialProperties() map[string]interface{} {
	return map[string]interface{}{
		"account_number": map[string]interface{}{
			"type":        "string",
			"pattern":     "^[0-9]{8}$",
			"description": "Eight digit account number",
		},
		"sort_code": map[string]interface{}{
			"type":        "string",
			"pattern":     "^[0-9]{6}$",
			"description": "Six digit sort code",
		},
	}
}

func credentialSchema(extra map[string]interface{}) map[string]interface{} {
	props := credentialProperties()
	for k, v := range extra {
		props[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []interface{}{"account_number", "sort_code"},
	}
}

// RegisterDomainTools registers the banking tool set against a remote
// backend
func RegisterDomainTools(e *Executor, backend *HTTPBackend) error {
	defs := []Definition{
		{
			Name:        ToolCheckBalance,
			Description: "Look up the current balance for a verified account",
			Schema:      credentialSchema(nil),
			Handler:     backend.Handler(ToolCheckBalance),
		},
		{
			Name:        ToolGetTransactions,
			Description: "Fetch recent transactions for a verified account",
			Schema: credentialSchema(map[string]interface{}{
				"count": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     20,
					"description": "Number of transactions to return",
				},
			}),
			Handler: backend.Handler(ToolGetTransactions),
		},
		{
			Name:        ToolVerifyIdentity,
			Description: "Verify the caller's identity against account credentials",
			Schema:      credentialSchema(nil),
			Handler:     backend.Handler(ToolVerifyIdentity),
		},
	}

	for _, def := range defs {
		if err := e.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterHandoffTools registers one local handoff tool per agent.
// Handoff tools never leave the process: the result is synthesized
// here and the routing layer acts on it.
func RegisterHandoffTools(e *Executor, handoffToolName func(string) string, agentIDs []string) error {
	for _, agentID := range agentIDs {
		agentID := agentID
		def := Definition{
			Name:        handoffToolName(agentID),
			Description: fmt.Sprintf("Transfer the conversation to the %s agent", agentID),
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Why the conversation is being transferred",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
				payload := map[string]interface{}{"target": agentID}
				if reason, ok := args["reason"].(string); ok && reason != "" {
					payload["reason"] = reason
				}
				return Result{Status: "success", Payload: payload}, nil
			},
		}
		if err := e.Register(def); err != nil {
			return err
		}
	}
	return nil
}
