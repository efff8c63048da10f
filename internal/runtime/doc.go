/*
Package runtime provides the protocol-agnostic client core of asyncflow.

# Architecture Overview

The runtime package turns an AsyncAPI document into dispatches. A publish or
subscribe names an operation id; the Client resolves everything the document
says about that operation and hands the result to a protocol handler from the
transport registry. Protocol handlers are built on Watermill.

# Package Structure

## Client (client.go)

The Client struct wires together:
  - Reference resolution over the loaded document
  - Operation and server resolution
  - Message selection for publishes
  - Channel address and server variable interpolation
  - Binding resolution for the server protocol
  - The protocol handler registry
  - Prometheus dispatch metrics and OpenTelemetry spans

A dispatch runs these stages in order and stops at the first failure:

 1. Resolve the operation and check its action against the verb
 2. Pick the server: the request, else Config.DefaultServer, else the first
 3. Interpolate the server host and path with server variables
 4. Publish only: select the message, content type, correlation id and reply address
 5. Interpolate the channel address with channel parameters
 6. Resolve server, channel, operation and message bindings
 7. Look up a handler for the protocol and version, then publish or subscribe

ResolvePublish and ResolveSubscribe run stages 1 to 6 without dispatching.

## Dispatch Hooks (hooks.go)

DispatchHooks run around every dispatch:
  - OnStart: right before the protocol handler is invoked
  - OnDone: after the handler returns without error
  - OnError: after resolution or the handler fails

# Sub-packages

  - binding/: Binding resolution per protocol family
  - config/: Client configuration with validation
  - disambiguation/: Message selection against payload and header schemas
  - document/: AsyncAPI 2.x and 3.x loading into one model
  - errors/: Sentinel errors and error types
  - expression/: Runtime expression parsing and evaluation
  - ids/: ULID generation for message IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - operation/: Operation, action and server resolution
  - params/: Server variable and channel parameter interpolation
  - reference/: $ref resolution with cycle detection
  - schema/: Schema format handlers (JSON Schema, XML)
  - telemetry/: Dispatch metrics and tracing

# Usage Example

	doc, err := asyncflow.LoadDocumentFile("asyncapi.yaml")
	if err != nil {
		return err
	}

	client, err := asyncflow.NewClient(doc, &asyncflow.Config{
		DefaultServer:  "production",
		KafkaBrokers:   []string{"localhost:9092"},
		MetricsEnabled: true,
	}, logger, asyncflow.ClientDependencies{})
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.Publish(ctx, asyncflow.PublishRequest{
		OperationID: "placeOrder",
		Payload:     order,
	})
*/
package runtime
