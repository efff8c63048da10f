// Package transports imports all built-in protocol handlers for
// auto-registration with the default registry.
package transports

import (
	// Import all handlers for side-effect registration
	_ "github.com/drblury/asyncflow/transport/amqp"
	_ "github.com/drblury/asyncflow/transport/aws"
	_ "github.com/drblury/asyncflow/transport/channel"
	_ "github.com/drblury/asyncflow/transport/http"
	_ "github.com/drblury/asyncflow/transport/kafka"
	_ "github.com/drblury/asyncflow/transport/nats"
)
