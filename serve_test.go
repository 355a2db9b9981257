package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/astei/voxelchunk/chunk"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := chunk.New(chunk.Position{X: 1, Z: 2}).SetBlock(3, 4, 5, 42)
	if err != nil {
		t.Fatal(err)
	}
	b := chunk.New(chunk.Position{X: -1, Z: 0})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(newRouter(newChunkServer([]*chunk.Chunk{a, b}, log)))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	resp, body := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestListChunks(t *testing.T) {
	srv := testServer(t)
	resp, body := get(t, srv.URL+"/chunks")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var got []chunkSummary
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var positions []chunk.Position
	for _, s := range got {
		positions = append(positions, chunk.Position{X: s.X, Z: s.Z})
	}
	want := []chunk.Position{{X: -1, Z: 0}, {X: 1, Z: 2}}
	if diff := cmp.Diff(want, positions); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	if got[1].NonAir != 1 {
		t.Errorf("nonAir = %d, want 1", got[1].NonAir)
	}
}

func TestGetChunkFormats(t *testing.T) {
	srv := testServer(t)

	resp, body := get(t, srv.URL+"/chunks/1/2?format=binary")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("binary status = %d: %s", resp.StatusCode, body)
	}
	c, err := chunk.Deserialize(body)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if id, _ := c.Block(3, 4, 5); id != 42 {
		t.Errorf("block = %d, want 42", id)
	}

	resp, body = get(t, srv.URL+"/chunks/1/2?format=rle")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rle status = %d: %s", resp.StatusCode, body)
	}
	if _, err := chunk.DecompressAt(chunk.Position{X: 1, Z: 2}, body); err != nil {
		t.Errorf("DecompressAt failed: %v", err)
	}

	resp, _ = get(t, srv.URL+"/chunks/1/2?format=gif")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", resp.StatusCode)
	}

	resp, _ = get(t, srv.URL+"/chunks/7/7")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing chunk status = %d, want 404", resp.StatusCode)
	}
}

func TestGetBlock(t *testing.T) {
	srv := testServer(t)

	resp, body := get(t, srv.URL+"/chunks/1/2/blocks/3/4/5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var got blockResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(blockResponse{X: 3, Y: 4, Z: 5, ID: 42}, got); diff != "" {
		t.Errorf("block mismatch (-want +got):\n%s", diff)
	}

	resp, body = get(t, srv.URL+"/chunks/1/2/blocks/16/0/0")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-bounds status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Invalid coordinates: (16, 0, 0)") {
		t.Errorf("body = %s", body)
	}

	resp, _ = get(t, srv.URL+"/chunks/1/2/blocks/x/0/0")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad coordinate status = %d, want 400", resp.StatusCode)
	}
}

func TestRespondJSONLogsThroughServerLogger(t *testing.T) {
	var logs bytes.Buffer
	s := newChunkServer(nil, slog.New(slog.NewJSONHandler(&logs, nil)))

	rec := httptest.NewRecorder()
	s.respondJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	if !strings.Contains(logs.String(), `"msg":"encoding response"`) {
		t.Errorf("server logger output = %q, want an encoding failure record", logs.String())
	}
}
