package model

import "strings"

// Finding categories the review template asks the model for. Any other
// category string returned by the model is preserved as-is.
const (
	CategoryStyle        = "style"
	CategoryBug          = "bug"
	CategoryPerformance  = "performance"
	CategoryBestPractice = "best_practice"

	// CategoryCritical is the marker counted separately in AnalysisSummary.
	CategoryCritical = "critical"
)

// Job is a single review request for one pull request.
type Job struct {
	ID         string `json:"id"`
	Repo       string `json:"repo"`
	Number     int    `json:"number"`
	Credential string `json:"credential,omitempty"`
}

// FileFinding is one issue the model reported for a file.
type FileFinding struct {
	Type        string `json:"type" validate:"required"`
	Line        *int   `json:"line,omitempty" validate:"omitempty,min=1"`
	Description string `json:"description" validate:"required"`
	Suggestion  string `json:"suggestion"`
}

// IsCritical reports whether the finding carries the critical marker.
func (f FileFinding) IsCritical() bool {
	return strings.EqualFold(strings.TrimSpace(f.Type), CategoryCritical)
}

// FileAnalysis holds the findings for one file of the pull request.
// Error is set when the file could not be analyzed; Findings is then empty.
type FileAnalysis struct {
	FileName string        `json:"file_name"`
	Findings []FileFinding `json:"findings"`
	Error    string        `json:"error,omitempty"`
}

// Failed reports whether analysis of this file failed.
func (a FileAnalysis) Failed() bool {
	return a.Error != ""
}

type AnalysisSummary struct {
	TotalFiles     int `json:"total_files"`
	TotalIssues    int `json:"total_issues"`
	CriticalIssues int `json:"critical_issues"`
	FailedFiles    int `json:"failed_files"`
}

// Summarize computes the summary from the final list of file analyses.
func Summarize(files []FileAnalysis) AnalysisSummary {
	s := AnalysisSummary{TotalFiles: len(files)}
	for _, f := range files {
		if f.Failed() {
			s.FailedFiles++
		}
		s.TotalIssues += len(f.Findings)
		for _, finding := range f.Findings {
			if finding.IsCritical() {
				s.CriticalIssues++
			}
		}
	}
	return s
}

// Result is the aggregate written once a review completes.
type Result struct {
	JobID   string          `json:"job_id"`
	Status  State           `json:"status"`
	Files   []FileAnalysis  `json:"files"`
	Summary AnalysisSummary `json:"summary"`
}
