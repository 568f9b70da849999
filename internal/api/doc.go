// Package api содержит HTTP API сервер — C9 HTTP Surface.
//
// Структура:
//   - handler.go         — Handler с DI (dispatcher, status store, webhook handler, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - job_handler.go      — обработчики /jobs*
//   - webhook_handler.go  — обработчик /webhook
//   - health.go           — /health, /health/detailed и реестр проб
package api
