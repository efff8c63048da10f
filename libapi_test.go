package asyncflow

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/asyncflow/transport/channel"
)

const libapiFixture = `
asyncapi: 3.0.0
info:
  title: Lights
  version: 1.0.0
servers:
  local:
    host: memory
    protocol: channel
channels:
  lights:
    address: lights.{id}
    parameters:
      id:
        location: $message.payload#/id
    messages:
      switched:
        payload:
          type: object
          required: [id]
operations:
  switchLight:
    action: receive
    channel:
      $ref: '#/channels/lights'
`

func TestClientExports(t *testing.T) {
	doc, err := LoadDocument([]byte(libapiFixture))
	if err != nil {
		t.Fatalf("load document: %v", err)
	}

	registry := NewTransportRegistry()
	registry.Add(channel.New(watermill.NopLogger{}))
	defer func() { _ = registry.Close() }()

	client, err := NewClient(doc, &Config{}, NewNopLogger(), ClientDependencies{Registry: registry})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	oc, err := client.ResolvePublish(context.Background(), PublishRequest{
		OperationID: "switchLight",
		Payload:     map[string]any{"id": "kitchen"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if oc.Channel() != "lights.kitchen" {
		t.Fatalf("expected channel lights.kitchen, got %q", oc.Channel())
	}
	if oc.Verb() != VerbPublish {
		t.Fatalf("expected publish verb, got %q", oc.Verb())
	}

	res, err := client.Publish(context.Background(), PublishRequest{
		OperationID: "switchLight",
		Payload:     map[string]any{"id": "kitchen"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.MessageID == "" {
		t.Fatal("expected message id")
	}
}

func TestErrorExports(t *testing.T) {
	doc, err := LoadDocument([]byte(libapiFixture))
	if err != nil {
		t.Fatalf("load document: %v", err)
	}
	client := MustNewClient(doc, &Config{}, NewNopLogger(), ClientDependencies{Registry: NewTransportRegistry()})

	_, err = client.Publish(context.Background(), PublishRequest{OperationID: "missing"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}

	_, err = client.Subscribe(context.Background(), SubscribeRequest{OperationID: "switchLight"})
	if !errors.Is(err, ErrActionMismatch) {
		t.Fatalf("expected action mismatch, got %v", err)
	}

	_, err = client.Publish(context.Background(), PublishRequest{
		OperationID: "switchLight",
		Payload:     map[string]any{"id": "kitchen"},
	})
	var unsupported *UnsupportedProtocolError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected unsupported protocol error, got %v", err)
	}
}

func TestExpressionExports(t *testing.T) {
	value, found, err := EvaluateExpression("$message.header#/traceId", nil, map[string]any{"traceId": "t-1"})
	if err != nil || !found || value != "t-1" {
		t.Fatalf("unexpected evaluation result %q %v %v", value, found, err)
	}
	if _, err := ParseExpression("$request.body"); !errors.Is(err, ErrInvalidExpression) {
		t.Fatalf("expected invalid expression error, got %v", err)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryServiceLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
	logger.Warn("careful", nil)
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataKeyExports(t *testing.T) {
	if MetadataKeyCorrelationID != "correlation_id" {
		t.Fatalf("expected correlation_id, got %q", MetadataKeyCorrelationID)
	}
	if NewMessageID() == "" {
		t.Fatal("expected message id")
	}
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Warn(args ...any)  {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return &clone
}
