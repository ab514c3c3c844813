package service

import "errors"

var (
	ErrClock               = errors.New("clock_before_epoch")
	ErrInternal            = errors.New("internal_error")
	ErrExchange            = errors.New("exchange_failed")
	ErrNonceNotFound       = errors.New("nonce_not_found")
	ErrNonceMismatch       = errors.New("nonce_mismatch")
	ErrIssuerMismatch      = errors.New("issuer_mismatch")
	ErrIdentityToken       = errors.New("invalid_identity_token")
	ErrProviderUnreachable = errors.New("provider_unreachable")
	ErrStoreUnavailable    = errors.New("store_unavailable")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrInvalidScope        = errors.New("invalid_scope")
)
