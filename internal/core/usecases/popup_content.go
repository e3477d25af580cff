package usecases

import (
	"net/url"
	"strconv"

	"github.com/samirrijal/poimap/internal/core/domain"
)

const noInformation = "no information"

// PopupContentFor renders the detail content shown when a marker is clicked.
func PopupContentFor(poi domain.POI) domain.PopupContent {
	switch p := poi.(type) {
	case domain.GeneralPlace:
		return placeContent(p)
	case domain.ChargingStation:
		return stationContent(p)
	}
	return domain.PopupContent{
		Variant:    poi.Variant(),
		Key:        poi.Key(),
		Title:      poi.Label(),
		DetailPath: poi.DetailPath(),
	}
}

func placeContent(p domain.GeneralPlace) domain.PopupContent {
	price := noInformation
	if p.PricePerUnit > 0 {
		price = strconv.Itoa(p.PricePerUnit) + "원"
	}
	capacity := noInformation
	if p.MaxCars > 0 {
		capacity = strconv.Itoa(p.MaxCars) + "대"
	}
	return domain.PopupContent{
		Variant:  domain.VariantGeneral,
		Key:      p.Key(),
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Fields: []domain.PopupField{
			{Label: "description", Value: orNoInformation(p.Description)},
			{Label: "price", Value: price},
			{Label: "charger type", Value: orNoInformation(p.ChargerType)},
			{Label: "hours", Value: orNoInformation(p.PlayTime)},
			{Label: "capacity", Value: capacity},
		},
		DetailPath: p.DetailPath(),
	}
}

func stationContent(s domain.ChargingStation) domain.PopupContent {
	c := domain.PopupContent{
		Variant: domain.VariantCharging,
		Key:     s.Key(),
		Title:   s.Label(),
		Fields: []domain.PopupField{
			{Label: "address", Value: orNoInformation(s.Address)},
			{Label: "operator", Value: orNoInformation(s.OperatorName)},
			{Label: "phone", Value: orNoInformation(s.OperatorPhone)},
		},
		DetailPath: s.DetailPath(),
		Charger:    &domain.ChargerPanel{State: domain.EnrichmentLoading},
	}
	if s.Address != "" {
		c.Links = []domain.PopupLink{
			{Label: "naver map", URL: "https://map.naver.com/v5/search/" + url.PathEscape(s.Address) + "/place"},
			{Label: "kakao map", URL: "https://map.kakao.com/?q=" + url.QueryEscape(s.Address)},
		}
	}
	return c
}

func orNoInformation(s string) string {
	if s == "" {
		return noInformation
	}
	return s
}
