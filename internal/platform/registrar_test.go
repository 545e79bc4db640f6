package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/destination"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/obslog"
)

func testLogger() *obslog.ContextLogger {
	return obslog.NewContextLogger(obslog.New(obslog.Config{Level: obslog.LevelFatal}), nil)
}

func TestNew_RequiresName(t *testing.T) {
	client := destination.New(destination.Config{BaseURL: "http://unused.invalid"})
	if _, err := New(client, testLogger(), "", ""); err == nil {
		t.Error("expected an error when name is empty")
	}
}

func TestCheckPlatform_RegistersWhenNoIdentifierKnown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected a POST to register a fresh platform, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"identifier": float64(5), "name": "my-bridge"})
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})
	r, err := New(client, testLogger(), "my-bridge", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := r.CheckPlatform(context.Background())
	if err != nil {
		t.Fatalf("CheckPlatform: %v", err)
	}
	if !ok {
		t.Fatalf("CheckPlatform = false, want true")
	}
	if r.Identifier() != "5" {
		t.Errorf("Identifier() = %q, want 5", r.Identifier())
	}
}

func TestCheckPlatform_MatchesExistingByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected a GET since identifier is already known, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"identifier": float64(3), "name": "my-bridge"})
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})
	r, err := New(client, testLogger(), "my-bridge", "3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := r.CheckPlatform(context.Background())
	if err != nil {
		t.Fatalf("CheckPlatform: %v", err)
	}
	if !ok {
		t.Errorf("CheckPlatform = false, want true on a name match")
	}
}

func TestCheckPlatform_UpdatesWhenNameDrifted(t *testing.T) {
	var sawPut bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"identifier": float64(3), "name": "old-name"})
		case http.MethodPut:
			sawPut = true
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"identifier": float64(3), "name": "new-name"})
		}
	}))
	defer srv.Close()

	client := destination.New(destination.Config{BaseURL: srv.URL})
	r, err := New(client, testLogger(), "new-name", "3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := r.CheckPlatform(context.Background())
	if err != nil {
		t.Fatalf("CheckPlatform: %v", err)
	}
	if !ok || !sawPut {
		t.Errorf("CheckPlatform = %v, sawPut = %v, want true/true on a name drift", ok, sawPut)
	}
}
