package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newEmbedServer serves an OpenAI-compatible /embeddings endpoint. Each
// input gets a vector whose first component is its index, and entries are
// returned in reverse order to exercise index-based reassembly. Batch
// sizes are recorded when batches is non-nil.
func newEmbedServer(t *testing.T, batches *[]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req apiEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if batches != nil {
			*batches = append(*batches, len(req.Input))
		}
		var resp apiEmbedResponse
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, apiEmbedVector{
				Index:     i,
				Embedding: []float32{float32(i), 1, 0},
			})
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIProviderReordersByIndex(t *testing.T) {
	srv := newEmbedServer(t, nil)
	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model"})

	vectors, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, vec := range vectors {
		if vec[0] != float32(i) {
			t.Errorf("vector %d out of order: first component = %v", i, vec[0])
		}
	}
}

func TestAPIProviderChunksLargeInputs(t *testing.T) {
	var batches []int
	srv := newEmbedServer(t, &batches)
	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model"})

	texts := make([]string, maxBatch+2)
	for i := range texts {
		texts[i] = fmt.Sprintf("finding %d", i)
	}

	vectors, err := p.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	if len(batches) != 2 || batches[0] != maxBatch || batches[1] != 2 {
		t.Errorf("batch sizes = %v, want [%d 2]", batches, maxBatch)
	}
}

func TestAPIProviderEmptyInput(t *testing.T) {
	p := NewAPIProvider(Config{Endpoint: "http://unused", Model: "test-model"})

	vectors, err := p.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestAPIProviderDimension(t *testing.T) {
	srv := newEmbedServer(t, nil)
	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model", Dimension: 256})

	// Before any call the configured default applies.
	if d := p.Dimension(); d != 256 {
		t.Errorf("dimension before embed = %d, want configured 256", d)
	}

	if _, err := p.Embed(context.Background(), []string{"sample"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if d := p.Dimension(); d != 3 {
		t.Errorf("dimension after embed = %d, want observed 3", d)
	}
}

func TestAPIProviderEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model"})
	if _, err := p.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error for failing endpoint")
	}
}

func TestLocalProviderEmbedsEachText(t *testing.T) {
	var requests int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req localEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests++
		json.NewEncoder(w).Encode(localEmbedResponse{
			Embedding: []float32{float32(len(req.Prompt)), 0},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewLocalProvider(Config{Endpoint: srv.URL, Model: "nomic-embed-text"})

	vectors, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3 (one per text)", requests)
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Errorf("vector %d = %v, want first component %v", i, vectors[i], want)
		}
	}
	if p.Dimension() != 2 {
		t.Errorf("dimension = %d, want observed 2", p.Dimension())
	}
}
