package dto

import "github.com/atlaserp/ledgercore/internal/core/domain"

// OutboxStatsResponse reports entry counts by delivery status.
type OutboxStatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
}

// ToOutboxStatsResponse converts domain stats to the response DTO.
func ToOutboxStatsResponse(s *domain.OutboxStats) OutboxStatsResponse {
	return OutboxStatsResponse{
		Pending:    s.Pending,
		Processing: s.Processing,
		Delivered:  s.Delivered,
		Failed:     s.Failed,
	}
}

// RetryFailedResponse reports how many failed entries were re-queued.
type RetryFailedResponse struct {
	Reset int64 `json:"reset"`
}
