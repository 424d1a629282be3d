package model

// Credentials is the persisted authorization state for one taxpayer
type Credentials struct {
	NIP            string `json:"nip"`
	LongLivedToken string `json:"long_lived_token"`
	SessionToken   string `json:"session_token"`
	CompanyName    string `json:"company_name"`
	IsConnected    bool   `json:"is_connected"`
	IsProduction   bool   `json:"is_production"`
}

// HasSession reports whether a usable session token is present
func (c Credentials) HasSession() bool {
	return c.IsConnected && c.SessionToken != ""
}

// SessionFor reports whether the stored session was issued by an environment
// of the given kind. A test session is never usable against production and
// the other way round.
func (c Credentials) SessionFor(production bool) bool {
	return c.HasSession() && c.IsProduction == production
}

// CredentialsPatch is a partial update of Credentials. Nil fields are left untouched.
type CredentialsPatch struct {
	NIP            *string
	LongLivedToken *string
	SessionToken   *string
	CompanyName    *string
	IsConnected    *bool
	IsProduction   *bool
}

// Apply returns c with every non-nil field of p merged in
func (p CredentialsPatch) Apply(c Credentials) Credentials {
	if p.NIP != nil {
		c.NIP = *p.NIP
	}
	if p.LongLivedToken != nil {
		c.LongLivedToken = *p.LongLivedToken
	}
	if p.SessionToken != nil {
		c.SessionToken = *p.SessionToken
	}
	if p.CompanyName != nil {
		c.CompanyName = *p.CompanyName
	}
	if p.IsConnected != nil {
		c.IsConnected = *p.IsConnected
	}
	if p.IsProduction != nil {
		c.IsProduction = *p.IsProduction
	}
	return c
}

// IsEmpty reports whether the patch changes nothing
func (p CredentialsPatch) IsEmpty() bool {
	return p.NIP == nil && p.LongLivedToken == nil && p.SessionToken == nil &&
		p.CompanyName == nil && p.IsConnected == nil && p.IsProduction == nil
}

// String returns a pointer to s, for building patches
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building patches
func Bool(b bool) *bool { return &b }
