package a2a

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/openfang/openfang/internal/openfang/guard"
)

func ctxBG() context.Context { return context.Background() }

// noSSRFRestrictions allow-lists ts's own loopback host, since httptest
// servers always bind to 127.0.0.1 and CheckSSRF would otherwise reject
// every request a test makes against them.
func noSSRFRestrictions(t *testing.T, ts *httptest.Server) guard.SSRFOptions {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	return guard.SSRFOptions{AllowHosts: []string{u.Hostname()}}
}
