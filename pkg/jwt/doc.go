// Package jwt issues and validates HMAC-SHA256 access tokens.
//
// Tokens are standard three-part JWTs signed with HS256. Claims are any
// JSON-serializable value; types embedding StandardClaims get expiry and
// not-before validation for free during Parse.
package jwt
