package models

// Symbol is one entry of an exchange listing.
type Symbol struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Exchange string `json:"Exchange"`
	Type     string `json:"Type"`
	Currency string `json:"Currency"`
}
