package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCLIPrintsOperation(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"operation":"updated","id":"u1"}`))
	}))
	defer srv.Close()

	token := writeFile(t, "token.txt", "  abc123\n")
	data := writeFile(t, "update.json", `{"type":"flow","team":"red"}`)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"--url", srv.URL, "--token-file", token, "--data-file", data, "--always-create"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("unexpected exit code %d", code)
	}
	if strings.TrimSpace(stdout.String()) != `{"operation":"updated"}` {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if stderr.Len() != 0 {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
	if gotAuth != "Bearer abc123" {
		t.Fatalf("token not trimmed: %q", gotAuth)
	}
	if gotBody["alwaysCreate"] != true {
		t.Fatalf("alwaysCreate not sent: %v", gotBody)
	}
	update, _ := gotBody["update"].(map[string]any)
	if update["team"] != "red" {
		t.Fatalf("payload not sent: %v", gotBody)
	}
}

func TestCLIReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"permission denied: invalid or expired token","code":403,"status":"permission-denied"}`))
	}))
	defer srv.Close()

	token := writeFile(t, "token.txt", "old")
	data := writeFile(t, "update.json", `{"type":"insights"}`)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"--url", srv.URL, "--token-file", token, "--data-file", data}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("failures must not set an exit code, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "invalid, expired") {
		t.Fatalf("expected mapped message, got %q", stderr.String())
	}
}

func TestCLILocalFailures(t *testing.T) {
	token := writeFile(t, "token.txt", "abc")
	empty := writeFile(t, "empty.txt", "\n")
	bad := writeFile(t, "bad.json", "{nope")
	good := writeFile(t, "good.json", `{"type":"insights"}`)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing flags", []string{"--url", "http://x"}, "missing required flags: --token-file, --data-file"},
		{"missing token file", []string{"--url", "http://x", "--token-file", "/nonexistent", "--data-file", good}, "read token"},
		{"empty token", []string{"--url", "http://x", "--token-file", empty, "--data-file", good}, "token file is empty"},
		{"malformed payload", []string{"--url", "http://x", "--token-file", token, "--data-file", bad}, "parse data file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := cli(tc.args, &stdout, &stderr); code != 0 {
				t.Fatalf("unexpected exit code %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("expected %q in stderr, got %q", tc.want, stderr.String())
			}
		})
	}
}

func TestCLIUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"--bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"push-update", "--url", "http://127.0.0.1:1"}
	main()
	if len(codes) != 1 || codes[0] != 0 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}
