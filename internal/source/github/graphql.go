package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Errors []gqlError
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return "github graphql: " + strings.Join(msgs, "; ")
}

// IsNotFound reports whether GitHub rejected a node id as unknown.
func (e *GraphQLError) IsNotFound() bool {
	for _, ge := range e.Errors {
		if ge.Type == "NOT_FOUND" {
			return true
		}
	}
	return false
}

func (p *Project) do(ctx context.Context, query string, vars map[string]any, out any) error {
	b, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github graphql: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("github graphql: decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return &GraphQLError{Errors: gr.Errors}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(gr.Data, out)
}
