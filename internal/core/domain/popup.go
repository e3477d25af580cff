package domain

// PopupField is one labelled line of popup detail content.
type PopupField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PopupLink is an external link rendered inside a popup.
type PopupLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// EnrichmentState tracks the charger-status panel of a station popup.
type EnrichmentState string

const (
	EnrichmentLoading     EnrichmentState = "loading"
	EnrichmentReady       EnrichmentState = "ready"
	EnrichmentUnavailable EnrichmentState = "unavailable"
)

// ChargerPanel is the charger occupancy section of a station popup.
type ChargerPanel struct {
	State   EnrichmentState `json:"state"`
	Summary *ChargerSummary `json:"summary,omitempty"`
	Message string          `json:"message,omitempty"`
}

// PopupContent is the rendered detail view of a POI.
type PopupContent struct {
	Variant    Variant       `json:"variant"`
	Key        string        `json:"key"`
	Title      string        `json:"title"`
	ImageURL   string        `json:"image_url,omitempty"`
	Fields     []PopupField  `json:"fields"`
	Links      []PopupLink   `json:"links,omitempty"`
	DetailPath string        `json:"detail_path"`
	Charger    *ChargerPanel `json:"charger,omitempty"`
}

// OpenPopup describes a popup currently shown by a session.
type OpenPopup struct {
	Handle   PopupHandle  `json:"handle"`
	Position Coordinate   `json:"position"`
	Content  PopupContent `json:"content"`
}
