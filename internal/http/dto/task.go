package dto

import "github.com/cesargomez89/spotdown/internal/domain"

type SubmitTaskRequest struct {
	PlaylistURL string `json:"playlistUrl"`
}

func (r *SubmitTaskRequest) Validate() []ValidationError {
	return validatePlaylistURL(r.PlaylistURL)
}

type SubmitTaskResponse struct {
	TaskID string            `json:"taskId"`
	Status domain.TaskStatus `json:"status"`
}

func NewSubmitTaskResponse(t *domain.Task) SubmitTaskResponse {
	return SubmitTaskResponse{TaskID: t.ID, Status: t.Status}
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
