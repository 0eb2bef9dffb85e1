package core

import "time"

// Principal is a DID allowed to log in with an API key
type Principal struct {
	DID    string // Decentralized identifier of the issuer or verifier
	Role   Role   // Role the principal logs in as
	APIKey string // Long-lived key traded for bearer tokens
}

// TokenSession is the content of a short-lived bearer token
type TokenSession struct {
	ID        string    // Unique token identifier
	DID       string    // Principal the token was issued to
	Role      Role      // Role the token is scoped to
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being accepted
}
