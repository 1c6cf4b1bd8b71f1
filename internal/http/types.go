package http

import "prreview/internal/model"

// AnalyzePRRequest is the body of POST /analyze-pr.
type AnalyzePRRequest struct {
	RepoURL     string `json:"repo_url" validate:"required"`
	PRNumber    int    `json:"pr_number" validate:"required,gt=0"`
	GitHubToken string `json:"github_token,omitempty"`
}

// AnalyzePRResponse returns the id callers poll with.
type AnalyzePRResponse struct {
	TaskID string `json:"task_id"`
}

// StatusResponse is returned by GET /status/:id.
type StatusResponse struct {
	TaskID string      `json:"task_id"`
	Status model.State `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// ResultResponse is returned by GET /results/:id once a job completed.
type ResultResponse struct {
	TaskID string       `json:"task_id"`
	Result model.Result `json:"result"`
}

// ErrorResponse is the error envelope for every endpoint.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}
