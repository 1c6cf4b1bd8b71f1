package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"prreview/internal/config"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.GitHubConfig{BaseURL: srv.URL, TimeoutMs: 2000, MaxPages: 5})
}

func TestFetchChangeSetAndFiles(t *testing.T) {
	var srv *httptest.Server
	var gotAuth []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"number":7,"title":"Add feature","state":"open","url":"%s/repos/octo/hello/pulls/7","head":{"sha":"abc"}}`, srv.URL)
	})
	mux.HandleFunc("/repos/octo/hello/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		if r.URL.Query().Get("per_page") != "100" {
			t.Errorf("expected per_page=100, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"filename":"main.go","status":"modified","patch":"@@ -1 +1 @@\n-a\n+b"},
			{"filename":"logo.png","status":"added"},
			{"filename":"util.go","status":"added","patch":"@@ -0,0 +1 @@\n+package util"}
		]`))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	ctx := context.Background()

	cs, err := c.FetchChangeSet(ctx, "octo/hello", 7, "secret-token")
	if err != nil {
		t.Fatalf("FetchChangeSet error: %v", err)
	}
	if cs.Number != 7 || cs.Title != "Add feature" || cs.Head.SHA != "abc" || cs.Repo != "octo/hello" {
		t.Fatalf("unexpected change set: %+v", cs)
	}

	files, err := c.FetchFiles(ctx, cs, "secret-token")
	if err != nil {
		t.Fatalf("FetchFiles error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if !files[0].HasPatch() || files[1].HasPatch() || !files[2].HasPatch() {
		t.Fatalf("unexpected patch presence: %+v", files)
	}

	for i, h := range gotAuth {
		if h != "Bearer secret-token" {
			t.Fatalf("request %d: expected bearer credential, got %q", i, h)
		}
	}
}

func TestFetchChangeSet_NoCredentialSendsNoAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no Authorization header, got %q", h)
		}
		w.Write([]byte(`{"number":1,"url":"http://example.invalid/pulls/1"}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).FetchChangeSet(context.Background(), "octo/hello", 1, ""); err != nil {
		t.Fatalf("FetchChangeSet error: %v", err)
	}
}

func TestFetchChangeSet_NonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchChangeSet(context.Background(), "octo/missing", 1, "")
	var fetchErr *UpstreamFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected UpstreamFetchError, got %T: %v", err, err)
	}
	if fetchErr.Stage != StageMetadata {
		t.Fatalf("expected metadata stage, got %q", fetchErr.Stage)
	}
	if got, want := err.Error(), `Failed to fetch PR data: {"message":"Not Found"}`; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

func TestFetchChangeSet_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchChangeSet(context.Background(), "octo/hello", 1, "")
	var fetchErr *UpstreamFetchError
	if !errors.As(err, &fetchErr) || fetchErr.Stage != StageMetadata {
		t.Fatalf("expected metadata UpstreamFetchError, got %v", err)
	}
}

func TestFetchFiles_NonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchFiles(context.Background(), ChangeSet{URL: srv.URL + "/repos/o/r/pulls/1"}, "")
	var fetchErr *UpstreamFetchError
	if !errors.As(err, &fetchErr) || fetchErr.Stage != StageFiles {
		t.Fatalf("expected files UpstreamFetchError, got %v", err)
	}
	if err.Error() != "Failed to fetch PR files: upstream down" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestFetchFiles_Pagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		n := filesPerPage
		if page == 2 {
			n = 3
		}
		batch := make([]map[string]string, n)
		for i := range batch {
			batch[i] = map[string]string{"filename": fmt.Sprintf("p%d/f%d.go", page, i), "patch": "+x"}
		}
		json.NewEncoder(w).Encode(batch)
	}))
	defer srv.Close()

	files, err := newTestClient(srv).FetchFiles(context.Background(), ChangeSet{URL: srv.URL + "/repos/o/r/pulls/1"}, "")
	if err != nil {
		t.Fatalf("FetchFiles error: %v", err)
	}
	if len(files) != filesPerPage+3 {
		t.Fatalf("expected %d files, got %d", filesPerPage+3, len(files))
	}
	if files[0].Filename != "p1/f0.go" || files[len(files)-1].Filename != "p2/f2.go" {
		t.Fatalf("unexpected ordering: first=%s last=%s", files[0].Filename, files[len(files)-1].Filename)
	}
}

func TestParseRepo(t *testing.T) {
	ok := map[string]string{
		"octo/hello":                         "octo/hello",
		" octo/hello/ ":                      "octo/hello",
		"https://github.com/octo/hello":      "octo/hello",
		"https://github.com/octo/hello.git":  "octo/hello",
		"https://github.com/octo/hello.js/":  "octo/hello.js",
	}
	for in, want := range ok {
		got, err := ParseRepo(in)
		if err != nil || got != want {
			t.Fatalf("ParseRepo(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, in := range []string{"", "octo", "octo/hello/extra", "../etc", "octo/he llo", "https://github.com/octo"} {
		if got, err := ParseRepo(in); err == nil {
			t.Fatalf("ParseRepo(%q) = %q; expected error", in, got)
		}
	}
}
