package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/asyncflow/transport"
)

func TestBuiltinsRegistered(t *testing.T) {
	for _, name := range []string{"amqp", "channel", "http", "kafka", "nats", "sns", "sqs"} {
		assert.True(t, transport.DefaultRegistry.Has(name), name)
	}
}
