// Package notion watches a single Notion page found by title in a database.
// Feedback is appended as gray paragraphs next to the block it refers to.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"annotator/internal/common/fault"
	"annotator/internal/feedback"
)

type Config struct {
	Token         string
	DatabaseID    string
	PageName      string
	TitleProperty string // database title column; defaults to "Name"
	BaseURL       string // empty means api.notion.com
}

// Page implements source.Document, source.Annotatable and source.RequestMarker.
type Page struct {
	http      *http.Client
	token     string
	database  string
	name      string
	titleProp string
	baseURL   string

	mu     sync.Mutex
	pageID string
}

func New(cfg Config) (*Page, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fault.Config("notion", errors.New("token is required"))
	}
	if strings.TrimSpace(cfg.DatabaseID) == "" || strings.TrimSpace(cfg.PageName) == "" {
		return nil, fault.Config("notion", errors.New("database id and page name are required"))
	}
	prop := strings.TrimSpace(cfg.TitleProperty)
	if prop == "" {
		prop = "Name"
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Page{
		http:      &http.Client{Timeout: 30 * time.Second},
		token:     cfg.Token,
		database:  cfg.DatabaseID,
		name:      cfg.PageName,
		titleProp: prop,
		baseURL:   base,
	}, nil
}

func (p *Page) resolve(ctx context.Context) (string, error) {
	p.mu.Lock()
	id := p.pageID
	p.mu.Unlock()
	if id != "" {
		return id, nil
	}
	query := map[string]any{
		"filter": map[string]any{
			"property": p.titleProp,
			"title":    map[string]any{"equals": p.name},
		},
	}
	var res struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := p.call(ctx, http.MethodPost, "/databases/"+p.database+"/query", query, &res); err != nil {
		return "", fmt.Errorf("query database: %w", err)
	}
	if len(res.Results) == 0 {
		return "", fault.NotFound("resolve page", p.name, errors.New("no page with that title"))
	}
	p.mu.Lock()
	p.pageID = res.Results[0].ID
	p.mu.Unlock()
	return res.Results[0].ID, nil
}

// Content renders the page blocks as Markdown-ish text, one block per line,
// children indented by four spaces.
func (p *Page) Content(ctx context.Context) (string, error) {
	id, err := p.resolve(ctx)
	if err != nil {
		return "", err
	}
	var lines []string
	if err := p.render(ctx, id, 0, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (p *Page) render(ctx context.Context, parent string, depth int, lines *[]string) error {
	blocks, err := p.children(ctx, parent)
	if err != nil {
		return fmt.Errorf("read blocks: %w", err)
	}
	indent := strings.Repeat("    ", depth)
	for _, b := range blocks {
		if line, ok := renderBlock(b); ok {
			*lines = append(*lines, indent+line)
		}
		if b.HasChildren {
			if err := p.render(ctx, b.ID, depth+1, lines); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderBlock(b block) (string, bool) {
	t := b.text()
	switch b.Type {
	case "heading_1":
		return "# " + t, true
	case "heading_2":
		return "## " + t, true
	case "heading_3":
		return "### " + t, true
	case "bulleted_list_item":
		return "- " + t, true
	case "numbered_list_item":
		return "1. " + t, true
	case "to_do":
		return "- [ ] " + t, true
	case "quote":
		return "> " + t, true
	}
	return t, b.hasText
}

// SetContent is not supported: Notion pages are block trees, not text.
func (p *Page) SetContent(context.Context, string) error {
	return fmt.Errorf("notion: set content: %w", errors.ErrUnsupported)
}

type located struct {
	block  block
	parent string
	depth  int
}

func (p *Page) walk(ctx context.Context, parent string, depth int, visit func(located) (bool, error)) (bool, error) {
	blocks, err := p.children(ctx, parent)
	if err != nil {
		return false, err
	}
	for _, b := range blocks {
		stop, err := visit(located{block: b, parent: parent, depth: depth})
		if err != nil || stop {
			return stop, err
		}
		if b.HasChildren {
			stop, err := p.walk(ctx, b.ID, depth+1, visit)
			if err != nil || stop {
				return stop, err
			}
		}
	}
	return false, nil
}

// line is the block as Content renders it, indent included.
func (l located) line() (string, bool) {
	t, ok := renderBlock(l.block)
	if !ok {
		return "", false
	}
	return strings.Repeat("    ", l.depth) + t, true
}

// AppendFeedback inserts each comment as gray paragraphs, one per comment
// line, right after the first block whose rendered line contains the anchor.
// Anchors are matched the way Content renders the page and existing feedback
// blocks are never anchors. Every anchor is resolved before anything is
// written, so a missing anchor leaves the page untouched.
func (p *Page) AppendFeedback(ctx context.Context, anns []feedback.Annotation) error {
	if len(anns) == 0 {
		return nil
	}
	id, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	targets := make([]*located, len(anns))
	left := len(anns)
	_, err = p.walk(ctx, id, 0, func(l located) (bool, error) {
		line, ok := l.line()
		if !ok || feedback.IsMarked(line) {
			return false, nil
		}
		for i, a := range anns {
			if targets[i] == nil && feedback.ContainsAnchor(line, a.Anchor) {
				targets[i] = &l
				left--
			}
		}
		return left == 0, nil
	})
	if err != nil {
		return fmt.Errorf("find anchors: %w", err)
	}
	for i, t := range targets {
		if t == nil {
			return fault.NotFound("append feedback", p.name, &feedback.AnchorNotFoundError{Anchor: anns[i].Anchor})
		}
	}

	// One request per anchor block keeps comments sharing an anchor in order.
	var order []*located
	lines := make(map[string][]any)
	for i, a := range anns {
		t := targets[i]
		if _, seen := lines[t.block.ID]; !seen {
			order = append(order, t)
		}
		for _, part := range strings.Split(strings.ReplaceAll(a.Comment, "\r\n", "\n"), "\n") {
			lines[t.block.ID] = append(lines[t.block.ID], textBlock("paragraph", feedback.MarkLine(part), "gray"))
		}
	}
	for _, t := range order {
		body := map[string]any{
			"children": lines[t.block.ID],
			"after":    t.block.ID,
		}
		if err := p.call(ctx, http.MethodPatch, "/blocks/"+t.parent+"/children", body, nil); err != nil {
			return fmt.Errorf("append after %s: %w", t.block.ID, err)
		}
	}
	return nil
}

// MarkRequestsHandled rewrites every block holding an unhandled "user:"
// request so it reads "!user:". Rich-text styling of those blocks is lost.
func (p *Page) MarkRequestsHandled(ctx context.Context) error {
	id, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	_, err = p.walk(ctx, id, 0, func(l located) (bool, error) {
		t := l.block.text()
		if !l.block.hasText || !feedback.HasPendingRequest(t) {
			return false, nil
		}
		update := textBlock(l.block.Type, feedback.MarkRequestsHandled(t), "")
		delete(update, "object")
		delete(update, "type")
		return false, p.call(ctx, http.MethodPatch, "/blocks/"+l.block.ID, update, nil)
	})
	return err
}
