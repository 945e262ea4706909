// Package notify delivers a rendered digest to e-mail and chat targets.
//
// Supported target types:
//
//	resend  Resend e-mail API, HTML body, subject "<title> - YYYY-MM-DD"
//	slack   incoming webhook, plain-text list
//	teams   incoming webhook, MessageCard
//	http    generic webhook, {"digest": ...} JSON
//
// Credentials are read from the environment variables named in the config.
// Transient failures (network errors, 429, 5xx) are retried with truncated
// exponential backoff; other 4xx answers fail immediately.
package notify
