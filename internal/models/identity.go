package models

// Identity is the authenticated user as described by the identity provider's claims
type Identity struct {
	Subject    string  `json:"sub"`
	GivenName  string  `json:"given_name,omitempty"`
	FamilyName string  `json:"family_name,omitempty"`
	Name       string  `json:"name,omitempty"`
	Nickname   string  `json:"nickname,omitempty"`
	Email      string  `json:"email,omitempty"`
	Picture    *string `json:"picture,omitempty"`
}

// PictureURL returns the picture claim, or "" when absent
func (i Identity) PictureURL() string {
	if i.Picture == nil {
		return ""
	}
	return *i.Picture
}

// DisplayName picks the friendliest name the provider supplied
func (i Identity) DisplayName() string {
	switch {
	case i.GivenName != "":
		return i.GivenName
	case i.Name != "":
		return i.Name
	case i.Nickname != "":
		return i.Nickname
	default:
		return i.Email
	}
}

// Normalize drops an empty picture claim so it reads as absent
func (i *Identity) Normalize() {
	if i.Picture != nil && *i.Picture == "" {
		i.Picture = nil
	}
}
