package a2a

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAgentCard(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	client := NewClient(ts.URL, noSSRFRestrictions(t, ts))
	card, err := client.FetchAgentCard(ctxBG())
	if err != nil {
		t.Fatalf("FetchAgentCard: %v", err)
	}
	if card.Name != "test-agent" {
		t.Fatalf("card.Name = %q", card.Name)
	}
}

func TestFetchAgentCardRejectsNonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, noSSRFRestrictions(t, ts))
	if _, err := client.FetchAgentCard(ctxBG()); err == nil {
		t.Fatal("expected error for 404 agent card response")
	}
}

func TestRegistryDiscoverAllSkipsFailingPeers(t *testing.T) {
	_, good := newTestServer(t)
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer bad.Close()

	reg := NewRegistry()
	reg.DiscoverAll(ctxBG(), map[string]*Client{
		good.URL: NewClient(good.URL, noSSRFRestrictions(t, good)),
		bad.URL:  NewClient(bad.URL, noSSRFRestrictions(t, bad)),
	})

	if _, ok := reg.Get(good.URL); !ok {
		t.Fatal("expected the healthy peer to be registered")
	}
	if _, ok := reg.Get(bad.URL); ok {
		t.Fatal("expected the failing peer to be skipped, not registered")
	}
	if len(reg.List()) != 1 {
		t.Fatalf("expected exactly one registered peer, got %d", len(reg.List()))
	}
}
