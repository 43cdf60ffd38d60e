package models

// WebhookClaims are the claims carried by the bearer token the event bus
// (or an operator) presents on the /events endpoints.
type WebhookClaims struct {
	Issuer    string   `json:"iss"` // optional
	Subject   string   `json:"sub"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	Stages    []string `json:"stages,omitempty"` // empty means every stage
}

// Allows reports whether the token may drive the given stage.
func (c *WebhookClaims) Allows(stage string) bool {
	if len(c.Stages) == 0 {
		return true
	}
	for _, s := range c.Stages {
		if s == stage {
			return true
		}
	}
	return false
}
