package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	api "prreview/internal/http"
	"prreview/internal/model"
)

func runCLI(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", addr}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSubmit_PrintsTaskID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze-pr" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req api.AnalyzePRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.RepoURL != "octo/hello" || req.PRNumber != 7 || req.GitHubToken != "tok" {
			t.Errorf("unexpected body %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.AnalyzePRResponse{TaskID: "task-1"})
	}))
	defer ts.Close()

	out, err := runCLI(t, ts.URL, "submit", "--repo", "octo/hello", "--pr", "7", "--token", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "task-1" {
		t.Fatalf("expected task id output, got %q", out)
	}
}

func TestSubmit_RequiresFlags(t *testing.T) {
	if _, err := runCLI(t, "http://127.0.0.1:1", "submit", "--pr", "1"); err == nil {
		t.Fatal("expected error without --repo")
	}
	if _, err := runCLI(t, "http://127.0.0.1:1", "submit", "--repo", "octo/hello"); err == nil {
		t.Fatal("expected error without --pr")
	}
}

func TestWait_PollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	files := []model.FileAnalysis{{FileName: "main.go", Findings: []model.FileFinding{{Type: "bug", Description: "nil map"}}}}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/task-1":
			state := model.StateProcessing
			if polls.Add(1) >= 3 {
				state = model.StateCompleted
			}
			json.NewEncoder(w).Encode(api.StatusResponse{TaskID: "task-1", Status: state})
		case "/results/task-1":
			json.NewEncoder(w).Encode(api.ResultResponse{TaskID: "task-1", Result: model.Result{
				JobID: "task-1", Status: model.StateCompleted, Files: files, Summary: model.Summarize(files),
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	out, err := runCLI(t, ts.URL, "wait", "task-1", "--interval", "5ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res model.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out)
	}
	if res.Summary.TotalIssues != 1 || polls.Load() < 3 {
		t.Fatalf("unexpected result %+v after %d polls", res, polls.Load())
	}
}

func TestWait_FailedJobReturnsReason(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.StatusResponse{
			TaskID: "task-2",
			Status: model.StateFailed,
			Reason: "Failed to fetch PR data: Not Found",
		})
	}))
	defer ts.Close()

	_, err := runCLI(t, ts.URL, "wait", "task-2", "--interval", "5ms")
	if err == nil || !strings.Contains(err.Error(), "Failed to fetch PR data: Not Found") {
		t.Fatalf("expected failure reason, got %v", err)
	}
}

func TestResult_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Code: "NOT_FOUND", Error: "Task not found"})
	}))
	defer ts.Close()

	_, err := runCLI(t, ts.URL, "result", "nope")
	if err == nil || !strings.Contains(err.Error(), "no result for task nope") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
