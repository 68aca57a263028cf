package dto

import "time"

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
}

type SessionTurnDTO struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type GetSessionHistoryResponse struct {
	SessionId string           `json:"session_id"`
	Turns     []SessionTurnDTO `json:"turns"`
}

type ResetSessionResponse struct {
	SessionId string `json:"session_id"`
	Reset     bool   `json:"reset"`
}
