package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/cases/abc":                  "/v1/cases/:id",
		"/v1/cases/abc/advance":          "/v1/cases/:id/advance",
		"/v1/cases/abc/timeline?limit=5": "/v1/cases/:id/timeline",
		"/v1/evidence/abc/verify":        "/v1/evidence/:id/verify",
		"/v1/corrections/abc/resolve":    "/v1/corrections/:id/resolve",
		"/v1/objections/abc/resolve":     "/v1/objections/:id/resolve",
		"/v1/roles/0xdeadbeef":           "/v1/roles/:id",
		"/v1/cases/abc/evidence/extra":   "/v1/cases/abc/evidence/extra",
		"/v1/stream":                     "/v1/stream",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
