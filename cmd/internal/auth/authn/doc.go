// Package authn orchestrates registration, login and secret changes on top
// of the credential store, the secret hasher and the token issuer.
//
// Login is enumeration resistant: an unknown identity and a wrong secret
// return the same error, and the unknown path still pays for one full
// verification against a digest made with the current parameters.
//
// Registration logs the caller in: a successful Register returns a token
// exactly like Login.
package authn
