package server

import "net/http"

// LookupEntry is one choice in a settings dropdown.
type LookupEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// timezones is the curated IANA zone list offered by the settings UI,
// UTC pinned first and the rest sorted by name. The value is the
// canonical zone name fed to time.LoadLocation.
var timezones = []LookupEntry{
	{Name: "UTC", Value: "UTC"},
	{Name: "Africa/Cairo", Value: "Africa/Cairo"},
	{Name: "Africa/Johannesburg", Value: "Africa/Johannesburg"},
	{Name: "Africa/Lagos", Value: "Africa/Lagos"},
	{Name: "America/Anchorage", Value: "America/Anchorage"},
	{Name: "America/Chicago", Value: "America/Chicago"},
	{Name: "America/Denver", Value: "America/Denver"},
	{Name: "America/Halifax", Value: "America/Halifax"},
	{Name: "America/Los_Angeles", Value: "America/Los_Angeles"},
	{Name: "America/Mexico_City", Value: "America/Mexico_City"},
	{Name: "America/New_York", Value: "America/New_York"},
	{Name: "America/Phoenix", Value: "America/Phoenix"},
	{Name: "America/Sao_Paulo", Value: "America/Sao_Paulo"},
	{Name: "America/Toronto", Value: "America/Toronto"},
	{Name: "Asia/Dubai", Value: "Asia/Dubai"},
	{Name: "Asia/Hong_Kong", Value: "Asia/Hong_Kong"},
	{Name: "Asia/Kolkata", Value: "Asia/Kolkata"},
	{Name: "Asia/Seoul", Value: "Asia/Seoul"},
	{Name: "Asia/Shanghai", Value: "Asia/Shanghai"},
	{Name: "Asia/Singapore", Value: "Asia/Singapore"},
	{Name: "Asia/Tokyo", Value: "Asia/Tokyo"},
	{Name: "Australia/Melbourne", Value: "Australia/Melbourne"},
	{Name: "Australia/Perth", Value: "Australia/Perth"},
	{Name: "Australia/Sydney", Value: "Australia/Sydney"},
	{Name: "Europe/Amsterdam", Value: "Europe/Amsterdam"},
	{Name: "Europe/Berlin", Value: "Europe/Berlin"},
	{Name: "Europe/Dublin", Value: "Europe/Dublin"},
	{Name: "Europe/Helsinki", Value: "Europe/Helsinki"},
	{Name: "Europe/Lisbon", Value: "Europe/Lisbon"},
	{Name: "Europe/London", Value: "Europe/London"},
	{Name: "Europe/Madrid", Value: "Europe/Madrid"},
	{Name: "Europe/Oslo", Value: "Europe/Oslo"},
	{Name: "Europe/Paris", Value: "Europe/Paris"},
	{Name: "Europe/Rome", Value: "Europe/Rome"},
	{Name: "Europe/Stockholm", Value: "Europe/Stockholm"},
	{Name: "Europe/Warsaw", Value: "Europe/Warsaw"},
	{Name: "Europe/Zurich", Value: "Europe/Zurich"},
	{Name: "Pacific/Auckland", Value: "Pacific/Auckland"},
	{Name: "Pacific/Honolulu", Value: "Pacific/Honolulu"},
}

// locales is the supported BCP 47 tag list.
var locales = []LookupEntry{
	{Name: "Deutsch", Value: "de-DE"},
	{Name: "English (UK)", Value: "en-GB"},
	{Name: "English (US)", Value: "en-US"},
	{Name: "Español", Value: "es-ES"},
	{Name: "Français", Value: "fr-FR"},
	{Name: "Italiano", Value: "it-IT"},
	{Name: "Nederlands", Value: "nl-NL"},
	{Name: "Português (Brasil)", Value: "pt-BR"},
	{Name: "Svenska", Value: "sv-SE"},
	{Name: "日本語", Value: "ja-JP"},
}

func (s *Server) lookupTimezones(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, timezones)
}

func (s *Server) lookupLocales(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, locales)
}
