// Package github reads and writes the items of a GitHub ProjectV2 board.
// Draft issues and repository issues are tracked; pull requests are skipped.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"annotator/internal/common/fault"
	"annotator/internal/tracker"
)

const defaultEndpoint = "https://api.github.com/graphql"

type Config struct {
	Token     string
	ProjectID string // ProjectV2 node id, e.g. PVT_kwHO...
	Endpoint  string // empty means api.github.com
}

// Project implements source.Lister, source.Writer and source.Describer.
type Project struct {
	http      *http.Client
	token     string
	projectID string
	endpoint  string

	mu      sync.Mutex
	content map[string]contentRef // item id -> editable content node
}

type contentRef struct {
	kind string // DraftIssue | Issue
	id   string
}

func New(cfg Config) (*Project, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fault.Config("github", errors.New("token is required"))
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fault.Config("github", errors.New("project id is required"))
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Project{
		http:      &http.Client{Timeout: 30 * time.Second},
		token:     cfg.Token,
		projectID: cfg.ProjectID,
		endpoint:  endpoint,
		content:   make(map[string]contentRef),
	}, nil
}

const itemsQuery = `query($id: ID!, $after: String) {
  node(id: $id) {
    ... on ProjectV2 {
      items(first: 50, after: $after) {
        pageInfo { hasNextPage endCursor }
        nodes {
          id
          updatedAt
          content {
            __typename
            ... on DraftIssue { id title body updatedAt }
            ... on Issue { id title body updatedAt }
          }
        }
      }
    }
  }
}`

type itemsData struct {
	Node *struct {
		Items struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []struct {
				ID        string    `json:"id"`
				UpdatedAt time.Time `json:"updatedAt"`
				Content   *struct {
					Typename  string    `json:"__typename"`
					ID        string    `json:"id"`
					Title     string    `json:"title"`
					Body      string    `json:"body"`
					UpdatedAt time.Time `json:"updatedAt"`
				} `json:"content"`
			} `json:"nodes"`
		} `json:"items"`
	} `json:"node"`
}

// ListItems pages through every project item. ModifiedAt is the content's
// updatedAt, falling back to the item's own timestamp.
func (p *Project) ListItems(ctx context.Context) ([]tracker.Snapshot, error) {
	var (
		out   []tracker.Snapshot
		refs  = make(map[string]contentRef)
		after any
	)
	for {
		var data itemsData
		if err := p.do(ctx, itemsQuery, map[string]any{"id": p.projectID, "after": after}, &data); err != nil {
			return nil, fmt.Errorf("list project items: %w", err)
		}
		if data.Node == nil {
			return nil, fault.NotFound("list project items", p.projectID, errors.New("project not found"))
		}
		for _, n := range data.Node.Items.Nodes {
			c := n.Content
			if c == nil || (c.Typename != "DraftIssue" && c.Typename != "Issue") {
				continue
			}
			modified := c.UpdatedAt
			if modified.IsZero() {
				modified = n.UpdatedAt
			}
			refs[n.ID] = contentRef{kind: c.Typename, id: c.ID}
			out = append(out, tracker.Snapshot{ID: n.ID, Title: c.Title, Body: c.Body, ModifiedAt: modified})
		}
		pi := data.Node.Items.PageInfo
		if !pi.HasNextPage || pi.EndCursor == "" {
			break
		}
		after = pi.EndCursor
	}
	p.mu.Lock()
	p.content = refs
	p.mu.Unlock()
	return out, nil
}

const updateDraftMutation = `mutation($id: ID!, $title: String!, $body: String!) {
  updateProjectV2DraftIssue(input: {draftIssueId: $id, title: $title, body: $body}) { draftIssue { id } }
}`

const updateIssueMutation = `mutation($id: ID!, $body: String!) {
  updateIssue(input: {id: $id, body: $body}) { issue { id } }
}`

// UpdateBody writes body back to the item's content node. The item must have
// been seen by a previous ListItems call.
func (p *Project) UpdateBody(ctx context.Context, id, title, body string) error {
	p.mu.Lock()
	ref, ok := p.content[id]
	p.mu.Unlock()
	if !ok {
		return fault.NotFound("update item body", id, errors.New("item not listed"))
	}
	var err error
	switch ref.kind {
	case "DraftIssue":
		err = p.do(ctx, updateDraftMutation, map[string]any{"id": ref.id, "title": title, "body": body}, nil)
	default:
		err = p.do(ctx, updateIssueMutation, map[string]any{"id": ref.id, "body": body}, nil)
	}
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) && gqlErr.IsNotFound() {
		return fault.NotFound("update item body", id, err)
	}
	return err
}

const descriptionQuery = `query($id: ID!) {
  node(id: $id) { ... on ProjectV2 { title shortDescription readme } }
}`

// Description returns the project's short description, or its readme when
// the short description is empty.
func (p *Project) Description(ctx context.Context) (string, error) {
	var data struct {
		Node *struct {
			Title            string `json:"title"`
			ShortDescription string `json:"shortDescription"`
			Readme           string `json:"readme"`
		} `json:"node"`
	}
	if err := p.do(ctx, descriptionQuery, map[string]any{"id": p.projectID}, &data); err != nil {
		return "", fmt.Errorf("project description: %w", err)
	}
	if data.Node == nil {
		return "", fault.NotFound("project description", p.projectID, errors.New("project not found"))
	}
	if d := strings.TrimSpace(data.Node.ShortDescription); d != "" {
		return d, nil
	}
	return strings.TrimSpace(data.Node.Readme), nil
}
