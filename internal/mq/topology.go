package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeAudit — единственный обменник этого пакета: все события аудита
// (webhook-валидация, операции контейнера, генерация и выполнение плана)
// публикуются сюда, routing key равен категории события.
const ExchangeAudit Exchange = "jobcore.audit"

// QueueAuditLog — очередь, на которую завязан встроенный хвост аудита
// (cmd/jobcore audit tail), потребляющий все категории через "#".
const QueueAuditLog Queue = "jobcore.audit.log"

// RoutingKeyAll связывает QueueAuditLog со всеми routing key обменника.
const RoutingKeyAll RoutingKey = "#"

// SetupTopology объявляет обменник и очередь аудита. Topic-обменник, а не
// direct (как у teacher-топологии) — потому что routing key здесь это
// AuditCategory (webhook.validated, container.op, ...) и привязка "#"
// должна ловить их все без перечисления.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(
			string(ExchangeAudit), "topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeAudit, err)
		}

		if _, err := ch.QueueDeclare(
			string(QueueAuditLog),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueAuditLog, err)
		}

		if err := ch.QueueBind(
			string(QueueAuditLog), string(RoutingKeyAll), string(ExchangeAudit),
			false, nil,
		); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueAuditLog, ExchangeAudit, err)
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования при старте.
func TopologyInfo() string {
	return `
  jobcore RabbitMQ topology:

    jobcore.audit (topic)
    └── jobcore.audit.log [routing: #]
            Consumer: jobcore audit tail (operator CLI), or any external sink
  `
}
