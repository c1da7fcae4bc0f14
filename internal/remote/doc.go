// Package remote is the client side of the finance API that owns the chart
// of accounts.
//
// Two endpoints are used. The auth endpoint takes a POST with Basic auth and
// answers {"response":{"token":"..."}}. The data endpoint takes a PATCH with
// a bearer token and a body naming a server-side script, and answers
// {"response":{"scriptResult":"<json>"}} where scriptResult is itself a JSON
// document encoded as a string.
//
// Both lookups are JSONPath expressions so deployments with a different
// envelope can be configured without code changes.
//
// TokenManager caches the token. Tokens have no visible expiry, so a caller
// that sees ErrUnauthorized from FetchScriptResult should Invalidate and try
// again once.
package remote
