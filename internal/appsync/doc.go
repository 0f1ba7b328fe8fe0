// Package appsync is a minimal GraphQL-over-HTTP client for the video API.
//
// Requests are POSTed as {"query", "variables"} with the x-api-key header.
// Non-2xx responses, undecodable bodies and non-empty GraphQL errors all
// surface as *ResponseError, classified with the services error markers so
// delivery strategies can decide whether a retry makes sense.
package appsync
