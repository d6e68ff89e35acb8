// Package identity resolves "who is making this call". Tokens are
// verified against an external OpenID Connect provider; the verified
// subject is then looked up in the member directory and attached to the
// request context as the caller. Login and session management stay with
// the provider, this package only consumes its tokens.
package identity
