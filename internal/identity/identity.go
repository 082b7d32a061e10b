// Package identity authenticates the callers of the payout API.
//
// It provides:
//   - Principals: address → bcrypt secret hash table used by the token exchange
//   - CallerTokenIssuer: issues and verifies HS256 caller session JWTs
//   - RequireCaller: Gin middleware enforcing a Bearer caller token
package identity
