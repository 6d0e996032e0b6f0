// Package signature decides how far an inbound push notification can be
// trusted.
//
// Two mechanisms are evaluated on every call:
//
//   - HMAC: when a key is configured and the request carries one of the
//     X-DocuSign-Signature-N headers, the raw body is signed with
//     HMAC-SHA256 and HMAC-SHA1 and each header is compared in constant
//     time against the base64 digests. A request that carries signatures
//     none of which match is rejected.
//   - Shared secret: when HMAC did not establish trust and a secret is
//     configured, the `secret` query parameter must equal it.
//
// A configured key with no signature header is not itself a failure; the
// request falls through to the shared secret check.
//
// Usage:
//
//	verifier := signature.NewVerifier(signature.Config{HMACKey: key}, logger)
//	result, err := verifier.Evaluate(r, body)
//	if err != nil {
//	    // 401
//	}
//	if result.Trusted { ... }
package signature
