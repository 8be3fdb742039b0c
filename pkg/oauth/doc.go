// Package oauth provides the provider-facing OAuth protocol primitives shared
// by the grantor flow engines.
//
// It deliberately stays below the orchestration layer: no sessions, no state
// machines, no user-facing messages. It covers:
//
//   - Token and device authorization response types (RFC 6749, RFC 8628)
//   - Typed token-endpoint error codes so poll loops branch on error codes,
//     never on free-form provider error text
//   - PKCE challenge and state generation (S256 only)
//   - A small HTTP client for device authorization, device token polling, and
//     authorization code exchange
//
// Full OAuth client capabilities (metadata discovery, refresh scheduling,
// token validation) are out of scope; the orchestrator only acquires
// credentials and hands them off.
package oauth
