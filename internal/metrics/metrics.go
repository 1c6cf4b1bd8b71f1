package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"prreview/internal/model"
)

// Simple Prometheus-style metrics for the gateway and the review pipeline.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	llmRequests    = make(map[llmKey]int64)

	jobsTotal          = make(map[string]int64)
	filesAnalyzedTotal = make(map[string]int64)
	findingsTotal      = make(map[string]int64)

	retentionJobsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type llmKey struct {
	Provider string
	Model    string
	Success  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordLLMRequest increments model request counters.
func RecordLLMRequest(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	key := llmKey{Provider: provider, Model: model, Success: s}
	llmRequests[key]++
}

// RecordJob counts a job reaching the given terminal status.
func RecordJob(status string) {
	mu.Lock()
	defer mu.Unlock()
	jobsTotal[status]++
}

// RecordFileAnalyzed counts one file analysis by outcome (ok, upstream_error,
// malformed).
func RecordFileAnalyzed(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	filesAnalyzedTotal[outcome]++
}

// findingCategories bounds the type label; categories come from model
// output and anything else is counted as "other".
var findingCategories = map[string]bool{
	model.CategoryStyle:        true,
	model.CategoryBug:          true,
	model.CategoryPerformance:  true,
	model.CategoryBestPractice: true,
	model.CategoryCritical:     true,
}

// RecordFindings adds n findings of the given category.
func RecordFindings(category string, n int) {
	if n <= 0 {
		return
	}
	c := strings.ToLower(strings.TrimSpace(category))
	if !findingCategories[c] {
		c = "other"
	}
	mu.Lock()
	defer mu.Unlock()
	findingsTotal[c] += int64(n)
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL.
func RecordRetentionJobs(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP prreview_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE prreview_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "prreview_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP prreview_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE prreview_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP prreview_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE prreview_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "prreview_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "prreview_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	b.WriteString("# HELP prreview_llm_requests_total Total model requests\n")
	b.WriteString("# TYPE prreview_llm_requests_total counter\n")

	var llmKeys []llmKey
	for k := range llmRequests {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		v := llmRequests[k]
		fmt.Fprintf(&b, "prreview_llm_requests_total{provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			escapeLabel(k.Provider), escapeLabel(k.Model), k.Success, v)
	}

	writeLabeled(&b, "prreview_jobs_total", "Review jobs by terminal status", "status", jobsTotal)
	writeLabeled(&b, "prreview_files_analyzed_total", "Files analyzed by outcome", "outcome", filesAnalyzedTotal)
	writeLabeled(&b, "prreview_findings_total", "Findings reported by category", "type", findingsTotal)

	b.WriteString("# HELP prreview_retention_jobs_deleted_total Total jobs deleted by TTL\n")
	b.WriteString("# TYPE prreview_retention_jobs_deleted_total counter\n")
	fmt.Fprintf(&b, "prreview_retention_jobs_deleted_total %d\n", retentionJobsDeleted)

	return b.String()
}

func writeLabeled(b *strings.Builder, name, help, label string, values map[string]int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, escapeLabel(k), values[k])
	}
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// escapeLabel escapes a label value per the Prometheus text format.
func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}
