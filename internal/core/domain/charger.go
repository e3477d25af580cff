package domain

// Charger status codes reported by the public EV charger status API.
const (
	ChargerStatCommError   = "1"
	ChargerStatAvailable   = "2"
	ChargerStatCharging    = "3"
	ChargerStatSuspended   = "4"
	ChargerStatMaintenance = "5"
	ChargerStatUnknown     = "9"
)

// ChargerStatusItem is the status of a single connector at a station.
type ChargerStatusItem struct {
	OperatorID string `json:"operator_id"`
	StationID  string `json:"station_id"`
	ChargerID  string `json:"charger_id"`
	Stat       string `json:"stat"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// ChargerSummary aggregates connector statuses for display.
type ChargerSummary struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Charging    int `json:"charging"`
	Unavailable int `json:"unavailable"`
}

// SummarizeChargers counts connectors by availability.
func SummarizeChargers(items []ChargerStatusItem) ChargerSummary {
	s := ChargerSummary{Total: len(items)}
	for _, it := range items {
		switch it.Stat {
		case ChargerStatAvailable:
			s.Available++
		case ChargerStatCharging:
			s.Charging++
		case ChargerStatCommError, ChargerStatSuspended, ChargerStatMaintenance, ChargerStatUnknown:
			s.Unavailable++
		}
	}
	return s
}
