// Package api implements the read-only REST API served in watch mode.
//
// Endpoints:
//
//	GET /api/v1/health                  last run id, time and counts
//	GET /api/v1/ranking                 full ranked list of the last run
//	GET /api/v1/ranking/{owner}/{name}  one ranked repository
//	GET /api/v1/digest                  the last digest
//
// Every route answers 503 until the first run completes.
// Non-GET methods receive 405.
package api
