// Package api provides the REST client for gateway discovery.
//
// Endpoints:
//   - GET /gateway       the gateway URL, no authentication
//   - GET /gateway/bot   URL, recommended shard count and session start limit
//
// Production base URL: https://discord.com/api/v10
package api
