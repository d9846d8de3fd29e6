package remotememory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_AddMemory_SendsBothAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/add" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected bearer header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		w.Write([]byte(`{"id":"mem-1","sectors":["general"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	resp, err := c.AddMemory(context.Background(), AddMemoryRequest{Content: "hello"})
	if err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if resp.ID != "mem-1" {
		t.Fatalf("unexpected id: %q", resp.ID)
	}
}

func TestClient_AddMemory_NoAuthHeadersWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || r.Header.Get("x-api-key") != "" {
			t.Errorf("expected no auth headers without an api key")
		}
		w.Write([]byte(`{"id":"mem-2"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.AddMemory(context.Background(), AddMemoryRequest{Content: "hi"}); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
}

func TestClient_AddMemory_MissingIDIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.AddMemory(context.Background(), AddMemoryRequest{Content: "hi"}); err == nil {
		t.Fatalf("expected an error when the response omits id")
	}
}

func TestClient_RawQuery_ParsesRootArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"a","content":"x","score":0.9},{"memory_id":"b","text":"y","salience":0.2}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, hits, err := c.RawQuery(context.Background(), QueryRequest{Query: "q", K: 2})
	if err != nil {
		t.Fatalf("RawQuery: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[1].ID != "b" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestClient_RawQuery_ParsesWrappedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"a","content":"x","score":0.5}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, hits, err := c.RawQuery(context.Background(), QueryRequest{Query: "q"})
	if err != nil {
		t.Fatalf("RawQuery: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestClient_RawQuery_DropsItemsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"content":"no id here"},{"id":"has-id","content":"x"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, hits, err := c.RawQuery(context.Background(), QueryRequest{Query: "q"})
	if err != nil {
		t.Fatalf("RawQuery: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "has-id" {
		t.Fatalf("expected only the item with an id to survive, got %+v", hits)
	}
}

func TestClient_RawQuery_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`boom`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, _, err := c.RawQuery(context.Background(), QueryRequest{Query: "q"}); err == nil {
		t.Fatalf("expected a non-2xx response to be an error")
	}
}
