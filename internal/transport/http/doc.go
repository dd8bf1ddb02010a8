// Package http implements the HTTP handlers of the SPC API. Handlers only
// parse requests, call the services and render responses; every error goes
// through errors.ErrorHandler and is returned as an RFC 7807 problem.
//
// # Routes
//
// Mounted under /api:
//
//	GET  /health, /health/ready, /health/live, /version
//	GET  /spc/{tier}/{asof}/limits          control limits of a month
//	GET  /spc/{tier}/{asof}/alerts          alert summaries, most alerting first
//	GET  /capability/{tier}/{asof}          capability indices
//	GET  /builds                            recorded build runs
//	POST /builds                            run the gold builds of a month
//	GET  /builds/{id}                       one build run
//	POST /logs                              dashboard client log entries
//
// Gold table endpoints accept ?format=csv and then return the same columns
// as the gold CSV files.
//
// The websocket endpoint /ws streams build events to dashboard clients.
package http
