package verification

import "time"

// DecisionRequest is the body of a decision endpoint.
type DecisionRequest struct {
	Code   string `json:"code"`
	Accept bool   `json:"accept"`
}

// Response is the JSON rendering of a verification. The code is only
// included when IncludeCode is used, i.e. right after creation.
type Response struct {
	ID         string            `json:"id"`
	Action     Action            `json:"action"`
	TargetID   string            `json:"target_id"`
	Status     Status            `json:"status"`
	Code       string            `json:"code,omitempty"`
	CreatedBy  string            `json:"created_by"`
	AssigneeID string            `json:"assignee_id,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	DecidedAt  *time.Time        `json:"decided_at,omitempty"`
}

// ListResponse is a page of verifications.
type ListResponse struct {
	Items []Response `json:"items"`
	Total int        `json:"total"`
	Skip  int        `json:"skip"`
	Take  int        `json:"take"`
}

// ToResponse renders v without its code.
func ToResponse(v Verification) Response {
	return Response{
		ID:         v.ID,
		Action:     v.Action,
		TargetID:   v.TargetID,
		Status:     v.Status,
		CreatedBy:  v.CreatedBy,
		AssigneeID: v.AssigneeID,
		Payload:    v.Payload,
		CreatedAt:  v.CreatedAt,
		DecidedAt:  v.DecidedAt,
	}
}

// IncludeCode renders v with its code.
func IncludeCode(v Verification) Response {
	r := ToResponse(v)
	r.Code = v.Code
	return r
}

// ToListResponse renders a page.
func ToListResponse(items []Verification, total int, f Filter) ListResponse {
	f = f.normalized()
	out := make([]Response, len(items))
	for i, v := range items {
		out[i] = ToResponse(v)
	}
	return ListResponse{Items: out, Total: total, Skip: f.Skip, Take: f.Take}
}
