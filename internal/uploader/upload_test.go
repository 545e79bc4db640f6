package uploader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/destination"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/obslog"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/translator"
)

func testLogger() *obslog.ContextLogger {
	return obslog.NewContextLogger(obslog.New(obslog.Config{Level: obslog.LevelFatal}), nil)
}

func entityWithRef(fields map[string]interface{}, refs map[string]string) *translator.Entity {
	e := &translator.Entity{Fields: fields, Reference: map[string]string{}}
	for loc, key := range refs {
		e.SetReference(loc, key)
	}
	return e
}

// Scenario 4 of spec.md §8: ref stitching through a live upload.
func TestUpload_RefStitching(t *testing.T) {
	var nextID int64 = 10
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		id := atomic.AddInt64(&nextID, 1)
		// the child ("c" type) must be created before the root ("t" type),
		// matching the graph's child -> parent dependency order.
		if body["v"] != nil && id != 11 {
			t.Errorf("child should be the first POST, got id %d for body %v", id, body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"identifier": float64(id)})
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})
	types := MapTypeEndpoints{"t": "t", "c": "c"}
	u := New(client, nil, types, testLogger())

	graph := translator.Graph{
		"/t":     entityWithRef(map[string]interface{}{}, map[string]string{"child": "$ref/c"}),
		"$ref/c": entityWithRef(map[string]interface{}{"v": "R"}, nil),
	}

	root, err := u.Upload(context.Background(), graph, "/t")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, ok := root.Fields["identifier"]; !ok {
		t.Fatalf("root has no identifier: %+v", root.Fields)
	}
	childID := graph["$ref/c"].Fields["identifier"]
	if root.Fields["child"] != childID {
		t.Errorf("root.Fields[child] = %v, want the child's identifier %v", root.Fields["child"], childID)
	}
	if len(root.Reference) != 0 {
		t.Errorf("root.Reference = %v, want fully resolved", root.Reference)
	}
}

// Scenario 5 of spec.md §8: listref stitching appends identifiers in index
// order onto the parent's pre-initialized empty list.
func TestUpload_ListRefStitching(t *testing.T) {
	ids := map[string]float64{"a": 100, "b": 101}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"identifier": ids[body["val"].(string)]})
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})
	types := MapTypeEndpoints{"t": "t", "el": "el"}
	u := New(client, nil, types, testLogger())

	graph := translator.Graph{
		"/t": entityWithRef(
			map[string]interface{}{"items": []interface{}{}},
			map[string]string{"items/0": "$ref/el/0", "items/1": "$ref/el/1"},
		),
		"$ref/el/0": entityWithRef(map[string]interface{}{"val": "a"}, nil),
		"$ref/el/1": entityWithRef(map[string]interface{}{"val": "b"}, nil),
	}

	root, err := u.Upload(context.Background(), graph, "/t")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	items, ok := root.Fields["items"].([]interface{})
	if !ok || len(items) != 2 {
		t.Fatalf("items = %v, want two stitched identifiers", root.Fields["items"])
	}
	if items[0] != float64(100) || items[1] != float64(101) {
		t.Errorf("items = %v, want [100 101] in order", items)
	}
}

// Scenario 6 of spec.md §8: already-exists heal via fetch+merge+PUT.
func TestUpload_AlreadyExistsHeal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"detail": "There already exists a t with identifier=42",
			})
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"identifier": float64(42),
				"tags":       []interface{}{"old"},
			})
		case r.Method == http.MethodPut:
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["identifier"] != float64(42) {
				t.Errorf("PUT identifier = %v, want 42", body["identifier"])
			}
			tags, _ := body["tags"].([]interface{})
			if len(tags) != 2 || tags[0] != "new" || tags[1] != "old" {
				t.Errorf("PUT tags = %v, want [new old]", body["tags"])
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(body)
		}
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})
	types := MapTypeEndpoints{"t": "t"}
	u := New(client, nil, types, testLogger())

	graph := translator.Graph{
		"/t": entityWithRef(map[string]interface{}{"tags": []interface{}{"new"}}, nil),
	}

	root, err := u.Upload(context.Background(), graph, "/t")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if root.Fields["identifier"] != "42" {
		t.Errorf("identifier = %v, want 42", root.Fields["identifier"])
	}
}

func TestUpload_UnresolvedReferenceFailsTheEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no POST should be attempted when a reference cannot resolve")
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})

	// "c" has no destination endpoint mapping here, so it cannot resolve.
	graph := translator.Graph{
		"/t":     entityWithRef(map[string]interface{}{}, map[string]string{"child": "$ref/c"}),
		"$ref/c": entityWithRef(map[string]interface{}{}, nil),
	}
	types := MapTypeEndpoints{"t": "t"} // "c" deliberately unmapped
	u := New(client, nil, types, testLogger())

	root, err := u.Upload(context.Background(), graph, "/t")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, ok := root.Fields["identifier"]; ok {
		t.Errorf("root should have no identifier when a reference never resolves")
	}
}

func TestUploader_ConvertAsset_EmptyGraphFails(t *testing.T) {
	client := destination.New(destination.Config{BaseURL: "http://unused.invalid"})
	trans := translator.New(func(string) (*translator.Node, error) { return nil, nil })
	u := New(client, trans, MapTypeEndpoints{}, testLogger())

	ok, err := u.ConvertAsset(context.Background(), map[string]interface{}{}, "unknown")
	if err != nil {
		t.Fatalf("ConvertAsset: %v", err)
	}
	if ok {
		t.Errorf("ConvertAsset should report failure for an untranslatable record")
	}
}
