package domain

// Software is a catalog entry as published by the backend.
type Software struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Function      string          `json:"function"`
	Keywords      []string        `json:"keywords,omitempty"`
	License       string          `json:"license,omitempty"`
	ReferentCount int             `json:"referentCount"`
	Alike         []AlikeSoftware `json:"alikeSoftwares,omitempty"`
}

// AlikeSoftware references a software similar to another one. Known
// references point to a catalog entry; unknown ones only carry a name.
type AlikeSoftware struct {
	IsKnown    bool   `json:"isKnown"`
	SoftwareID int    `json:"softwareId,omitempty"`
	Name       string `json:"name,omitempty"`
}
