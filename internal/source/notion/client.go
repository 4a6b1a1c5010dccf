package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// APIError is a non-2xx Notion response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: %d %s: %s", e.Status, e.Code, e.Message)
}

func (p *Page) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type richText struct {
	Type        string         `json:"type"`
	PlainText   string         `json:"plain_text,omitempty"`
	Text        *textContent   `json:"text,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty"`
}

type textContent struct {
	Content string `json:"content"`
}

func plain(rt []richText) string {
	var sb strings.Builder
	for _, t := range rt {
		switch {
		case t.PlainText != "":
			sb.WriteString(t.PlainText)
		case t.Text != nil:
			sb.WriteString(t.Text.Content)
		}
	}
	return sb.String()
}

// block is one Notion block. The type-specific payload sits under a key
// named after the type, so it is decoded in two steps.
type block struct {
	ID          string
	Type        string
	HasChildren bool
	RichText    []richText
	hasText     bool
}

func (b *block) UnmarshalJSON(data []byte) error {
	var head struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.ID, b.Type, b.HasChildren = head.ID, head.Type, head.HasChildren

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, ok := raw[head.Type]
	if !ok {
		return nil
	}
	var body struct {
		RichText *[]richText `json:"rich_text"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}
	if body.RichText != nil {
		b.RichText = *body.RichText
		b.hasText = true
	}
	return nil
}

func (b block) text() string { return plain(b.RichText) }

type blockList struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

func (p *Page) children(ctx context.Context, id string) ([]block, error) {
	var out []block
	cursor := ""
	for {
		path := "/blocks/" + id + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var page blockList
		if err := p.call(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		if !page.HasMore || page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func textBlock(blockType, content string, color string) map[string]any {
	rt := map[string]any{
		"type": "text",
		"text": map[string]any{"content": content},
	}
	if color != "" {
		rt["annotations"] = map[string]any{"color": color}
	}
	return map[string]any{
		"object":  "block",
		"type":    blockType,
		blockType: map[string]any{"rich_text": []any{rt}},
	}
}
