package origin

import "testing"

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		wantOrig string
		wantHost string
		wantOK   bool
	}{
		{name: "simple https", in: "https://app.example.com", wantOrig: "https://app.example.com", wantHost: "app.example.com", wantOK: true},
		{name: "uppercase folded", in: "HTTPS://App.Example.COM", wantOrig: "https://app.example.com", wantHost: "app.example.com", wantOK: true},
		{name: "default https port stripped", in: "https://app.example.com:443", wantOrig: "https://app.example.com", wantHost: "app.example.com", wantOK: true},
		{name: "default http port stripped", in: "http://localhost:80", wantOrig: "http://localhost", wantHost: "localhost", wantOK: true},
		{name: "explicit port kept", in: "http://localhost:5173", wantOrig: "http://localhost:5173", wantHost: "localhost:5173", wantOK: true},
		{name: "trailing slash", in: "https://app.example.com/", wantOrig: "https://app.example.com", wantHost: "app.example.com", wantOK: true},
		{name: "ipv6 literal", in: "http://[::1]:3000", wantOrig: "http://[::1]:3000", wantHost: "[::1]:3000", wantOK: true},
		{name: "null origin", in: "null", wantOrig: "null", wantHost: "", wantOK: true},
		{name: "surrounding space", in: "  https://app.example.com  ", wantOrig: "https://app.example.com", wantHost: "app.example.com", wantOK: true},

		{name: "empty", in: "", wantOK: false},
		{name: "missing scheme", in: "app.example.com", wantOK: false},
		{name: "unsupported scheme", in: "ftp://app.example.com", wantOK: false},
		{name: "path not allowed", in: "https://app.example.com/login", wantOK: false},
		{name: "query not allowed", in: "https://app.example.com?x=1", wantOK: false},
		{name: "userinfo not allowed", in: "https://user@app.example.com", wantOK: false},
		{name: "port zero", in: "http://localhost:0", wantOK: false},
		{name: "port too large", in: "http://localhost:70000", wantOK: false},
		{name: "unbracketed ipv6", in: "http://::1", wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotOrig, gotHost, ok := NormalizeHeader(tc.in)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if gotOrig != tc.wantOrig || gotHost != tc.wantHost {
				t.Fatalf("got (%q, %q), want (%q, %q)", gotOrig, gotHost, tc.wantOrig, tc.wantHost)
			}
		})
	}
}

func TestIsAllowed_AllowList(t *testing.T) {
	allowed := []string{"https://app.example.com", "http://localhost:5173"}

	cases := []struct {
		origin string
		want   bool
	}{
		{origin: "https://app.example.com", want: true},
		{origin: "http://localhost:5173", want: true},
		{origin: "https://evil.example.com", want: false},
		{origin: "null", want: false},
	}
	for _, tc := range cases {
		norm, host, ok := NormalizeHeader(tc.origin)
		if tc.origin == "null" {
			norm, host = "null", ""
		} else if !ok {
			t.Fatalf("normalize %q failed", tc.origin)
		}
		if got := IsAllowed(norm, host, "relay.example.com", allowed); got != tc.want {
			t.Fatalf("IsAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}

	if !IsAllowed("https://anything.example.com", "anything.example.com", "relay.example.com", []string{"*"}) {
		t.Fatalf("wildcard entry must allow any origin")
	}
}

func TestIsAllowed_DefaultSameHost(t *testing.T) {
	cases := []struct {
		name        string
		origin      string
		requestHost string
		want        bool
	}{
		{name: "same host", origin: "https://relay.example.com", requestHost: "relay.example.com", want: true},
		{name: "same host default port", origin: "https://relay.example.com", requestHost: "relay.example.com:443", want: true},
		{name: "different host", origin: "https://other.example.com", requestHost: "relay.example.com", want: false},
		{name: "different port", origin: "http://localhost:5173", requestHost: "localhost:8000", want: false},
		{name: "null never matches", origin: "null", requestHost: "relay.example.com", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			norm, host := tc.origin, ""
			if tc.origin != "null" {
				var ok bool
				norm, host, ok = NormalizeHeader(tc.origin)
				if !ok {
					t.Fatalf("normalize %q failed", tc.origin)
				}
			}
			if got := IsAllowed(norm, host, tc.requestHost, nil); got != tc.want {
				t.Fatalf("IsAllowed = %v, want %v", got, tc.want)
			}
		})
	}
}
