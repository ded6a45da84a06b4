package services

import (
	"time"

	"colorbet/models"
)

const (
	EventRoundStarted = "round.started"
	EventRoundClosing = "round.closing"
	EventRoundEnded   = "round.ended"
)

type Event struct {
	Type    string    `json:"type"`
	RoundNo int64     `json:"round_no"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type RoundStartedPayload struct {
	StartTime time.Time `json:"start_time"`
	CloseTime time.Time `json:"close_time"`
	EndTime   time.Time `json:"end_time"`
}

type RoundEndedPayload struct {
	Winner      models.Outcome                   `json:"winner"`
	TotalStaked models.Amount                    `json:"total_staked"`
	TotalPaid   models.Amount                    `json:"total_paid"`
	Profit      models.Amount                    `json:"profit"`
	Pools       map[models.Outcome]models.Amount `json:"pools"`
}

// Publisher delivers round lifecycle events to connected clients. Publish
// must not block the caller.
type Publisher interface {
	Publish(Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
