// Package mq предоставляет интеграцию с RabbitMQ, используемую здесь
// исключительно как транспорт для audit sink port (spec §6): публикация
// событий аудита с fire-and-forget-семантикой, плюс разбор тех же
// сообщений для операторского хвоста (cmd/jobcore audit tail).
//
// Включает:
//   - connection.go — управление подключением с auto-reconnect
//   - publisher.go  — публикация сообщений в exchange jobcore.audit
//   - consumer.go   — потребление сообщений из очередей
//   - topology.go   — декларация exchange/queue аудита
package mq
