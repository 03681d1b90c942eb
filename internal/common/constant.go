// Package common contains shared constants and sentinel errors used across
// gophaccounts components.
package common

// TokenCookieName is the HTTP cookie that carries the signed access token.
const TokenCookieName = "token"
