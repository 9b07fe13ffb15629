package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
	"contextnexus/internal/dispatcher"
	"contextnexus/internal/optimizer"
	"contextnexus/internal/registry"
	"contextnexus/internal/repository/memory"
	"contextnexus/internal/scorer"
	"contextnexus/internal/selection"
)

type echoConnector struct{ id string }

func (c echoConnector) Info() registry.Info {
	return registry.Info{ID: c.id, Capabilities: map[string]struct{}{"chat": {}}}
}

func (c echoConnector) Send(_ context.Context, prompt core.Prompt, _ registry.SendOptions) (string, error) {
	return "answer", nil
}

func (c echoConnector) Stream(_ context.Context, _ core.Prompt, _ registry.SendOptions) (<-chan registry.StreamChunk, error) {
	ch := make(chan registry.StreamChunk, 1)
	ch <- registry.StreamChunk{Text: "answer", Done: true}
	close(ch)
	return ch, nil
}

func buildTestServer(t *testing.T) (*Server, *memory.ContentStore, *memory.ContextStore) {
	t.Helper()

	contents := memory.NewContentStore()
	contexts := memory.NewContextStore()
	vectors := memory.NewVectorStore(nil)

	sc := scorer.New(vectors, nil)
	opt := optimizer.New(contents, contexts, sc, nil)
	sel := selection.New(contents, contexts, sc)

	reg := registry.New()
	reg.Register("m1", echoConnector{id: "m1"})
	disp := dispatcher.New(reg, []core.ModelConfig{{ID: "m1", Weight: 1, MaxConcurrent: 2}})

	s := NewServer(opt, disp, sel, nil, nil, "m1", 10000)
	return s, contents, contexts
}

func seedContext(contents *memory.ContentStore, contexts *memory.ContextStore, contextID, projectID string) {
	contents.Put(core.ContentItem{ID: "c1", ProjectID: projectID, Type: core.ContentText, Title: "doc", Body: "relevant body text about testing"})
	contexts.Put(core.Context{
		ID:        contextID,
		ProjectID: projectID,
		Items: []core.ContextItemEdge{
			{ContentID: "c1", SelectedByUser: true, AddedAt: time.Now()},
		},
	})
}

func TestHandleQueryReturnsDispatchedText(t *testing.T) {
	s, contents, contexts := buildTestServer(t)
	seedContext(contents, contexts, "ctx1", "proj1")

	body, _ := json.Marshal(map[string]any{"query": "what is testing", "contextId": "ctx1"})
	req := httptest.NewRequest(http.MethodPost, "/queries", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "answer", resp["text"])
	assert.Equal(t, "m1", resp["modelId"])
}

func TestHandleQueryMissingContextIDIsBadRequest(t *testing.T) {
	s, _, _ := buildTestServer(t)

	body, _ := json.Marshal(map[string]any{"query": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/queries", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleQueryUnknownContextIsNotFound(t *testing.T) {
	s, _, _ := buildTestServer(t)

	body, _ := json.Marshal(map[string]any{"query": "hi", "contextId": "missing"})
	req := httptest.NewRequest(http.MethodPost, "/queries", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleSelectionStatus(t *testing.T) {
	s, contents, contexts := buildTestServer(t)
	seedContext(contents, contexts, "ctx1", "proj1")

	req := httptest.NewRequest(http.MethodGet, "/selection/contexts/ctx1/status", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var status selection.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "ctx1", status.ContextID)
	assert.Equal(t, 1, status.ItemCount)
}

func TestHandleSelectionAddAndRemove(t *testing.T) {
	s, contents, contexts := buildTestServer(t)
	contents.Put(core.ContentItem{ID: "c2", ProjectID: "proj1", Type: core.ContentText, Body: "x"})
	contexts.Put(core.Context{ID: "ctx1", ProjectID: "proj1"})

	addBody, _ := json.Marshal(map[string]any{"contentId": "c2"})
	req := httptest.NewRequest(http.MethodPost, "/selection/contexts/ctx1/content", bytes.NewReader(addBody))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/selection/contexts/ctx1/content/c2", nil)
	delRR := httptest.NewRecorder()
	s.ServeHTTP(delRR, delReq)
	require.Equal(t, http.StatusOK, delRR.Code)
}

func TestHandleHealthzAndReadyz(t *testing.T) {
	s, _, _ := buildTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		s.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestHandleDispatchStatus(t *testing.T) {
	s, _, _ := buildTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dispatch/status", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var snapshot []dispatcher.StatusSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot))
	require.Len(t, snapshot, 1)
	assert.Equal(t, "m1", snapshot[0].ID)
}
