package domain

import (
	"fmt"
	"strconv"
)

// Variant identifies one of the independently sourced POI sets.
type Variant string

const (
	VariantGeneral  Variant = "general"
	VariantCharging Variant = "charging"
)

// Variants lists every POI variant in display order.
var Variants = []Variant{VariantGeneral, VariantCharging}

// ParseVariant returns the Variant named by s.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantGeneral, VariantCharging:
		return Variant(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// POI is a point of interest shown on the map. Keys are stable across reloads
// and unique within a variant.
type POI interface {
	Key() string
	Variant() Variant
	Position() Coordinate
	Label() string
	// DetailPath is the router path of the POI's detail page.
	DetailPath() string
}

// GeneralPlace is a user-registered place (parking, camping spot, etc.).
type GeneralPlace struct {
	PlaceID      int64      `json:"place_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	Location     Coordinate `json:"location"`
	PricePerUnit int        `json:"price_per_unit"`
	ChargerType  string     `json:"charger_type,omitempty"`
	PlayTime     string     `json:"play_time,omitempty"`
	MaxCars      int        `json:"max_cars"`
	UserID       int64      `json:"user_id,omitempty"`
}

func (p GeneralPlace) Key() string          { return string(VariantGeneral) + ":" + strconv.FormatInt(p.PlaceID, 10) }
func (p GeneralPlace) Variant() Variant     { return VariantGeneral }
func (p GeneralPlace) Position() Coordinate { return p.Location }
func (p GeneralPlace) Label() string        { return p.Title }
func (p GeneralPlace) DetailPath() string   { return "/place/" + strconv.FormatInt(p.PlaceID, 10) }

// ChargingStation is an EV charging station from the public station registry.
type ChargingStation struct {
	StationID     string     `json:"station_id"`
	Name          string     `json:"name"`
	Address       string     `json:"address,omitempty"`
	Location      Coordinate `json:"location"`
	OperatorName  string     `json:"operator_name,omitempty"`
	OperatorPhone string     `json:"operator_phone,omitempty"`
}

func (s ChargingStation) Key() string          { return string(VariantCharging) + ":" + s.StationID }
func (s ChargingStation) Variant() Variant     { return VariantCharging }
func (s ChargingStation) Position() Coordinate { return s.Location }
func (s ChargingStation) DetailPath() string   { return "/charge-stations/" + s.StationID }

// Label renders the station as "name (operator)".
func (s ChargingStation) Label() string {
	if s.OperatorName == "" {
		return s.Name
	}
	return s.Name + " (" + s.OperatorName + ")"
}
