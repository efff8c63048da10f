// Package asyncflow is a protocol-agnostic client for AsyncAPI documents. It
// loads an AsyncAPI 2.x or 3.x document, resolves operations by id and hands
// fully resolved operation contexts to protocol handlers built on Watermill.
//
// A Client resolves every call in stages: the operation and its action, the
// server and its variables, the channel address and its parameters, the
// message definition that matches the payload, the correlation id and reply
// address, and finally the protocol bindings of the server, channel, operation
// and message. The resulting OperationContext is immutable and goes to the
// first registered ProtocolHandler that supports the server protocol.
//
// A minimal setup loads the document, fills Config, creates a Client and
// calls Publish or Subscribe:
//
//	doc, _ := asyncflow.LoadDocumentFile("asyncapi.yaml")
//	client, _ := asyncflow.NewClient(doc, &asyncflow.Config{}, logger, asyncflow.ClientDependencies{})
//	res, err := client.Publish(ctx, asyncflow.PublishRequest{
//		OperationID: "placeOrder",
//		Payload:     order,
//	})
//
// # Protocol handlers
//
// Handlers register themselves with the default transport registry when their
// package is imported. Import transport/transports for all of them:
//   - channel: In-memory Go channels for testing
//   - kafka: Kafka topics with consumer groups
//   - amqp: RabbitMQ exchanges and queues
//   - nats: NATS Core subjects
//   - http: HTTP publishing
//   - sns, sqs: AWS SNS topics and SQS queues with LocalStack support
//
// Config.ProtocolOverrides maps document protocols to registered handlers,
// e.g. to serve "kafka" servers with the in-memory handler in tests.
//
// # Dispatch Hooks
//
// ClientDependencies.Hooks provides OnStart, OnDone, and OnError callbacks for
// custom logging, metrics collection, and alerting around each dispatch.
package asyncflow
