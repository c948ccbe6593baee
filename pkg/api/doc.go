// Package api hosts the engine's HTTP surface: a gin server with health and
// metrics endpoints plus a registration hook for feature controllers.
package api
