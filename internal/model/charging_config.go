package model

import "encoding/json"

// ChargingConfiguration stores the operator-specific charging record as an
// opaque JSON document. The shape depends on the owning payment channel.
type ChargingConfiguration struct {
	ID     int64  `gorm:"primaryKey;autoIncrement;column:id;<-:create" json:"id"`
	Config string `gorm:"column:config;type:text" json:"config"`
}

type GPChargingConfig struct {
	Keyword string `json:"keyword"`
}

type RobiChargingConfig struct {
	APIKey               string `json:"apiKey"`
	Username             string `json:"username"`
	OnBehalfOf           string `json:"onBehalfOf"`
	PurchaseCategoryCode string `json:"purchaseCategoryCode"`
	Channel              string `json:"channel"`
	SubscriptionID       string `json:"subscriptionID"`
	UnSubURL             string `json:"unSubURL"`
	ContactInfo          string `json:"contactInfo"`
}

// GPConfig decodes the configuration document as a GP charging config.
// An empty or malformed document yields (nil, false).
func (c ChargingConfiguration) GPConfig() (*GPChargingConfig, bool) {
	if c.Config == "" {
		return nil, false
	}

	var cfg GPChargingConfig
	if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
		return nil, false
	}

	return &cfg, true
}

// RobiConfig decodes the configuration document as a ROBI charging config.
// The ROBI wire call cannot be made without apiKey and username, so those are
// required for the document to count as present.
func (c ChargingConfiguration) RobiConfig() (*RobiChargingConfig, bool) {
	if c.Config == "" {
		return nil, false
	}

	var cfg RobiChargingConfig
	if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
		return nil, false
	}

	if cfg.APIKey == "" || cfg.Username == "" {
		return nil, false
	}

	return &cfg, true
}
