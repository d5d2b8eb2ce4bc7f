package queue

import (
	"fmt"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/redis"
)

// New builds the configured driver. redisClient is only used by valkey.
func New(cfg environments.QueueConfig, redisClient *redis.Client, prefetch int) (Queue, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemory(cfg.Buffer), nil
	case "valkey", "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("queue driver %s needs a Valkey connection", cfg.Driver)
		}
		return NewValkey(redisClient, cfg.Name), nil
	case "amqp", "rabbitmq":
		return NewAMQP(cfg.AMQPURL, cfg.Name, prefetch)
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}
