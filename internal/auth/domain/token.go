package domain

import "time"

// TokenPair is what the issuer hands back after a login or a refresh. Both
// tokens are always minted together.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenStateKind is the outcome of checking a request's tokens.
type TokenStateKind int

const (
	TokenInvalid TokenStateKind = iota
	TokenValid
	TokenRequiresRefresh
)

func (k TokenStateKind) String() string {
	switch k {
	case TokenValid:
		return "valid"
	case TokenRequiresRefresh:
		return "requires_refresh"
	default:
		return "invalid"
	}
}

// TokenState is the authentication decision for one request. Subject is
// set unless Kind is TokenInvalid; User is only set for TokenRequiresRefresh,
// where the caller needs the role and version to reissue.
type TokenState struct {
	Kind    TokenStateKind
	Subject string
	User    *User
}

func Valid(subject string) TokenState {
	return TokenState{Kind: TokenValid, Subject: subject}
}

func Invalid() TokenState {
	return TokenState{Kind: TokenInvalid}
}

func RequiresRefresh(subject string, user User) TokenState {
	return TokenState{Kind: TokenRequiresRefresh, Subject: subject, User: &user}
}
