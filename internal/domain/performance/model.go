package performance

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the cached call-handling summary for one staff member. It is
// always derivable from the emergency table.
type Snapshot struct {
	StaffID             uuid.UUID
	TotalAssigned       int
	Resolved            int
	ResolutionRate      float64 // percent, two decimals
	AvgResponseTime     time.Duration
	AvgResolutionTime   time.Duration
	SatisfactionPercent float64
	Rating              float64
	LastUpdated         *time.Time // nil when never persisted
}

type snapshotJSON struct {
	StaffID              uuid.UUID  `json:"staff_id"`
	TotalAssigned        int        `json:"total_assigned"`
	Resolved             int        `json:"resolved"`
	ResolutionRate       float64    `json:"resolution_rate"`
	AvgResponseSeconds   float64    `json:"avg_response_time_seconds"`
	AvgResponse          string     `json:"avg_response_time"`
	AvgResolutionSeconds float64    `json:"avg_resolution_time_seconds"`
	AvgResolution        string     `json:"avg_resolution_time"`
	SatisfactionPercent  float64    `json:"satisfaction_percent"`
	Rating               float64    `json:"rating"`
	LastUpdated          *time.Time `json:"last_updated"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		StaffID:              s.StaffID,
		TotalAssigned:        s.TotalAssigned,
		Resolved:             s.Resolved,
		ResolutionRate:       s.ResolutionRate,
		AvgResponseSeconds:   s.AvgResponseTime.Seconds(),
		AvgResponse:          FormatDuration(s.AvgResponseTime),
		AvgResolutionSeconds: s.AvgResolutionTime.Seconds(),
		AvgResolution:        FormatDuration(s.AvgResolutionTime),
		SatisfactionPercent:  s.SatisfactionPercent,
		Rating:               s.Rating,
		LastUpdated:          s.LastUpdated,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var v snapshotJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Snapshot{
		StaffID:             v.StaffID,
		TotalAssigned:       v.TotalAssigned,
		Resolved:            v.Resolved,
		ResolutionRate:      v.ResolutionRate,
		AvgResponseTime:     secondsToDuration(v.AvgResponseSeconds),
		AvgResolutionTime:   secondsToDuration(v.AvgResolutionSeconds),
		SatisfactionPercent: v.SatisfactionPercent,
		Rating:              v.Rating,
		LastUpdated:         v.LastUpdated,
	}
	return nil
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec*1e6)) * time.Microsecond
}

// CallRecord is the slice of an emergency the recalculator needs.
type CallRecord struct {
	Status         string
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}

// FormatDuration renders whole seconds as "1h 2m 3s", "4m 5s" or "6s".
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0s"
	}
	h, rem := total/3600, total%3600
	m, s := rem/60, rem%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
