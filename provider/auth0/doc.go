// Package auth0 implements auth.Backend on an Auth0 database connection.
//
// Sign in uses the password grant, access tokens are checked against the
// tenant JWKS, and the token set is kept in an auth.TokenStore. Directory
// answers privileged confirmation lookups through the Management API.
package auth0
