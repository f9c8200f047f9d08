package server

// General API annotations for swag. Endpoint annotations live on the
// handlers.
//
// @title taxamap API
// @version 1.0
// @description Species profiles resolved from a local record store and, on a miss,
// @description researched against external sources, merged and stored.
// @description
// @description Events for resolved species and finished research sessions stream
// @description over WebSocket and Server-Sent Events.
//
// @contact.name taxamap Project
// @contact.url https://github.com/agentstation/taxamap
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication (optional, configurable)
