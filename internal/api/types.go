package api

// EncryptRequest carries the plain text to encrypt and store. The text must
// be lowercase unaccented words separated by single spaces.
type EncryptRequest struct {
	Text string `json:"text"`
}

// EncryptResponse returns the retrieval key (the SHA-256 fingerprint of the
// encrypted text) alongside the encrypted form.
type EncryptResponse struct {
	Key           string `json:"key"`
	EncryptedText string `json:"encrypted_text"`
	Created       bool   `json:"record_created"`
	Message       string `json:"message"`
}

// DecryptRequest carries a retrieval key previously handed out by encrypt.
type DecryptRequest struct {
	Key string `json:"key"`
}

type DecryptResponse struct {
	Text          string `json:"text"`
	EncryptedText string `json:"encrypted_text"`
}

// UpdateRequest carries replacement plain text for a stored entry.
type UpdateRequest struct {
	Text string `json:"text"`
}

type UpdateResponse struct {
	Key           string `json:"key"`
	EncryptedText string `json:"encrypted_text"`
}

// StatsResponse is the per-identity counter view rendered by the page.
type StatsResponse struct {
	VisitCount int `json:"visit_count"`
	TextCount  int `json:"text_count"`
	TextLimit  int `json:"text_limit"`
	Remaining  int `json:"remaining"`
}

type VisitResponse struct {
	VisitCount int64 `json:"visit_count"`
}

type IdentityResponse struct {
	IP string `json:"ip"`
}

type GeoResponse struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	LocalTime   string `json:"local_time"`
}
