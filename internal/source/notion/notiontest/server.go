// Package notiontest runs an in-memory stand-in for the slice of the Notion
// API the notion package talks to: database query by title, paginated block
// children, appending children after a block and updating a block's text.
package notiontest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Block seeds the page tree. Parts, when set, become separate rich-text
// runs; otherwise Text is a single run.
type Block struct {
	Type     string
	Text     string
	Parts    []string
	Children []Block
}

// Patch is one recorded PATCH request.
type Patch struct {
	Path string
	Body map[string]any
}

type node struct {
	id    string
	typ   string
	parts []string
}

// Server serves one database holding one page.
type Server struct {
	*httptest.Server
	Database string
	Title    string
	PageID   string
	PageSize int

	mu       sync.Mutex
	children map[string][]*node
	patches  []Patch
	seq      int
}

// NewServer starts a server whose page is called title and holds blocks.
// It is closed when the test ends.
func NewServer(t testing.TB, title string, blocks ...Block) *Server {
	t.Helper()
	s := &Server{
		Database: "db",
		Title:    title,
		PageID:   "page",
		PageSize: 100,
		children: make(map[string][]*node),
	}
	s.seed(s.PageID, blocks)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /databases/{db}/query", s.query)
	mux.HandleFunc("GET /blocks/{id}/children", s.list)
	mux.HandleFunc("PATCH /blocks/{id}/children", s.appendChildren)
	mux.HandleFunc("PATCH /blocks/{id}", s.update)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) seed(parent string, blocks []Block) {
	for _, b := range blocks {
		parts := b.Parts
		if parts == nil && b.Text != "" {
			parts = []string{b.Text}
		}
		n := &node{id: s.nextID(), typ: b.Type, parts: parts}
		s.children[parent] = append(s.children[parent], n)
		s.seed(n.id, b.Children)
	}
}

func (s *Server) nextID() string {
	s.seq++
	return "b" + strconv.Itoa(s.seq)
}

// Append adds blocks at the end of the page, the way an author would.
func (s *Server) Append(blocks ...Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed(s.PageID, blocks)
}

// Patches returns every PATCH received so far.
func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// BlockID returns the id of the first block whose text equals text.
func (s *Server) BlockID(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.children {
		for _, n := range list {
			if strings.Join(n.parts, "") == text {
				return n.id
			}
		}
	}
	return ""
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var q struct {
		Filter struct {
			Title struct {
				Equals string `json:"equals"`
			} `json:"title"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		fail(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	results := []any{}
	if r.PathValue("db") == s.Database && q.Filter.Title.Equals == s.Title {
		results = append(results, map[string]any{"id": s.PageID})
	}
	writeJSON(w, map[string]any{"results": results})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.children[r.PathValue("id")]
	start, _ := strconv.Atoi(r.URL.Query().Get("start_cursor"))
	end := min(start+s.PageSize, len(all))
	if start > end {
		start = end
	}
	results := make([]any, 0, end-start)
	for _, n := range all[start:end] {
		results = append(results, s.render(n))
	}
	out := map[string]any{"results": results, "has_more": end < len(all)}
	if end < len(all) {
		out["next_cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, out)
}

func (s *Server) render(n *node) map[string]any {
	payload := map[string]any{}
	if n.typ != "divider" {
		rt := make([]any, 0, len(n.parts))
		for _, p := range n.parts {
			rt = append(rt, map[string]any{"type": "text", "plain_text": p})
		}
		payload["rich_text"] = rt
	}
	return map[string]any{
		"id":           n.id,
		"type":         n.typ,
		"has_children": len(s.children[n.id]) > 0,
		n.typ:          payload,
	}
}

type richText struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func contentOf(payload json.RawMessage) ([]string, error) {
	var body struct {
		RichText []richText `json:"rich_text"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(body.RichText))
	for _, rt := range body.RichText {
		parts = append(parts, rt.Text.Content)
	}
	return parts, nil
}

func (s *Server) appendChildren(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	var req struct {
		Children []map[string]json.RawMessage `json:"children"`
		After    string                       `json:"after"`
	}
	body, ok := s.record(w, r, &raw)
	if !ok {
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	parent := r.PathValue("id")
	list := s.children[parent]
	at := len(list)
	if req.After != "" {
		at = -1
		for i, n := range list {
			if n.id == req.After {
				at = i + 1
			}
		}
		if at < 0 {
			fail(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("block %s is not a child of %s", req.After, parent))
			return
		}
	}
	added := make([]*node, 0, len(req.Children))
	for _, c := range req.Children {
		var typ string
		if err := json.Unmarshal(c["type"], &typ); err != nil {
			fail(w, http.StatusBadRequest, "validation_error", "child type is required")
			return
		}
		parts, err := contentOf(c[typ])
		if err != nil {
			fail(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		added = append(added, &node{id: s.nextID(), typ: typ, parts: parts})
	}
	next := make([]*node, 0, len(list)+len(added))
	next = append(next, list[:at]...)
	next = append(next, added...)
	next = append(next, list[at:]...)
	s.children[parent] = next
	s.patches = append(s.patches, Patch{Path: r.URL.Path, Body: raw})
	writeJSON(w, map[string]any{"results": []any{}})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	body, ok := s.record(w, r, &raw)
	if !ok {
		return
	}
	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	for _, list := range s.children {
		for _, n := range list {
			if n.id != id {
				continue
			}
			if payload, ok := req[n.typ]; ok {
				parts, err := contentOf(payload)
				if err != nil {
					fail(w, http.StatusBadRequest, "validation_error", err.Error())
					return
				}
				n.parts = parts
			}
			s.patches = append(s.patches, Patch{Path: r.URL.Path, Body: raw})
			writeJSON(w, s.render(n))
			return
		}
	}
	fail(w, http.StatusNotFound, "object_not_found", "no block "+id)
}

func (s *Server) record(w http.ResponseWriter, r *http.Request, raw *map[string]any) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(body, raw)
	}
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid_json", err.Error())
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "error", "status": status, "code": code, "message": msg})
}
