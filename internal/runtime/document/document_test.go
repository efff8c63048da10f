package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v3Fixture = `
asyncapi: 3.0.0
info:
  title: Items
  version: 1.0.0
servers:
  s1:
    host: api.example.com
    protocol: http
    pathname: /v1
channels:
  c1:
    address: /items/{id}
    parameters:
      id:
        location: $message.payload#/id
    messages:
      itemCreated:
        payload:
          type: object
          required: [id]
        bindings:
          amqp:
            bindingVersion: 0.3.0
          http:
            method: POST
    bindings:
      $ref: '#/components/channelBindings/amqpSet'
operations:
  op1:
    action: receive
    channel:
      $ref: '#/channels/c1'
    messages:
      - $ref: '#/channels/c1/messages/itemCreated'
components:
  schemas:
    Item:
      type: object
  channelBindings:
    amqpSet:
      amqp:
        is: queue
`

const v2Fixture = `
asyncapi: 2.6.0
info:
  title: Legacy
  version: 1.0.0
servers:
  prod:
    url: amqp://broker.local:5672/vhost
    protocol: amqp
channels:
  user/{userId}/signedup:
    servers: [prod]
    parameters:
      userId:
        location: $message.payload#/user/id
        schema:
          type: string
          default: anonymous
          enum: [anonymous, alice]
    publish:
      operationId: userSignedUp
      message:
        oneOf:
          - $ref: '#/components/messages/UserSignedUp'
          - name: Fallback
            schemaFormat: application/vnd.aai.asyncapi+json;version=2.6.0
            payload:
              type: string
    subscribe:
      message:
        $ref: '#/components/messages/UserSignedUp'
components:
  messages:
    UserSignedUp:
      messageId: UserSignedUp
      payload:
        type: object
`

func TestLoadV3(t *testing.T) {
	doc, err := Load([]byte(v3Fixture))
	require.NoError(t, err)

	assert.Equal(t, 3, doc.MajorVersion())
	require.Contains(t, doc.Servers, "s1")
	assert.Equal(t, "http://api.example.com/v1", doc.Servers["s1"].URL())

	ch := doc.Channels["c1"]
	require.NotNil(t, ch)
	assert.Equal(t, "/items/{id}", ch.AddressTemplate())
	assert.Equal(t, "$message.payload#/id", ch.Parameters["id"].Location)
	assert.Equal(t, "#/components/channelBindings/amqpSet", ch.Bindings.Ref)

	msg := ch.Messages["itemCreated"]
	require.NotNil(t, msg)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, "#/channels/c1/messages/itemCreated/payload", msg.Payload.Location)
	require.Len(t, msg.Bindings.Items, 2)
	assert.Equal(t, "amqp", msg.Bindings.Items[0].Name)
	assert.Equal(t, "0.3.0", msg.Bindings.Items[0].Version())
	assert.Equal(t, "POST", msg.Bindings.Items[1].StringValue("method"))

	op := doc.Operations["op1"]
	require.NotNil(t, op)
	assert.Equal(t, ActionReceive, op.Action)
	assert.Equal(t, "#/channels/c1", op.Channel.Ref)

	assert.Equal(t, "#/components/schemas/Item", doc.Components.Schemas["Item"].Location)
	assert.Contains(t, doc.SchemaDefinitions(), "Item")
	require.Len(t, doc.Components.ChannelBindings["amqpSet"].Items, 1)
}

func TestLoadJSON(t *testing.T) {
	doc, err := Load([]byte(`{
	"asyncapi": "3.0.0",
	"info": {"title": "t", "version": "1"},
	"channels": {"c": {"address": "orders"}}
}`))
	require.NoError(t, err)
	assert.Equal(t, "orders", doc.Channels["c"].AddressTemplate())
}

func TestLoadV2Normalises(t *testing.T) {
	doc, err := Load([]byte(v2Fixture))
	require.NoError(t, err)

	server := doc.Servers["prod"]
	require.NotNil(t, server)
	assert.Equal(t, "broker.local:5672", server.Host)
	assert.Equal(t, "/vhost", server.Pathname)

	ch := doc.Channels["user/{userId}/signedup"]
	require.NotNil(t, ch)
	assert.Equal(t, "user/{userId}/signedup", ch.AddressTemplate())
	require.Len(t, ch.Servers, 1)
	assert.Equal(t, "#/servers/prod", ch.Servers[0].Ref)

	param := ch.Parameters["userId"]
	require.NotNil(t, param)
	assert.Equal(t, "anonymous", param.Default)
	assert.Equal(t, []string{"anonymous", "alice"}, param.Enum)

	publish := doc.Operations["userSignedUp"]
	require.NotNil(t, publish)
	assert.Equal(t, ActionReceive, publish.Action)
	assert.Equal(t, "#/channels/user~1{userId}~1signedup", publish.Channel.Ref)
	require.Len(t, publish.Messages, 2)
	assert.Equal(t, "#/channels/user~1{userId}~1signedup/messages/UserSignedUp", publish.Messages[0].Ref)
	assert.Equal(t, "#/channels/user~1{userId}~1signedup/messages/Fallback", publish.Messages[1].Ref)

	subscribe := doc.Operations["user/{userId}/signedup.subscribe"]
	require.NotNil(t, subscribe)
	assert.Equal(t, ActionSend, subscribe.Action)
	require.Len(t, subscribe.Messages, 1)
	assert.Equal(t, publish.Messages[0].Ref, subscribe.Messages[0].Ref)
	assert.Len(t, ch.Messages, 2)

	fallback := ch.Messages["Fallback"]
	require.NotNil(t, fallback)
	assert.Equal(t, "application/vnd.aai.asyncapi+json;version=2.6.0", fallback.Payload.Format)
	assert.Equal(t, "#/components/messages/UserSignedUp", ch.Messages["UserSignedUp"].Ref)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(nil)
	require.Error(t, err)

	_, err = Load([]byte("info: {title: x}"))
	require.ErrorIs(t, err, ErrVersionRequired)

	_, err = Load([]byte("- a\n- b"))
	require.Error(t, err)

	_, err = Load([]byte("{not json"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asyncapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(v3Fixture), 0o600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Items", doc.Info.Title)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPointerHelpers(t *testing.T) {
	ptr := Pointer("channels", "a/b~c")
	assert.Equal(t, "#/channels/a~1b~0c", ptr)

	segments, ok := SplitPointer(ptr)
	require.True(t, ok)
	assert.Equal(t, []string{"channels", "a/b~c"}, segments)

	_, ok = SplitPointer("other.yaml#/channels/x")
	assert.False(t, ok)
}

func TestBindingSupportsIsCaseInsensitive(t *testing.T) {
	b := Binding{Name: "AMQP", Protocols: ProtocolFamily("AMQP")}
	assert.True(t, b.Supports("amqp"))
	assert.True(t, b.Supports("AMQPS"))
	assert.False(t, b.Supports("mqtt"))

	custom := Binding{Name: "ibmmq", Protocols: ProtocolFamily("ibmmq")}
	assert.True(t, custom.Supports("IBMMQ"))
}

func TestBindingDecodeAndClone(t *testing.T) {
	b := Binding{Name: "kafka", Protocols: ProtocolFamily("kafka"), Properties: map[string]any{"topic": "orders", "partitions": 3}}

	var decoded struct {
		Topic      string `json:"topic"`
		Partitions int    `json:"partitions"`
	}
	require.NoError(t, b.Decode(&decoded))
	assert.Equal(t, "orders", decoded.Topic)
	assert.Equal(t, 3, decoded.Partitions)

	cloned := b.Clone()
	cloned.Properties["topic"] = "changed"
	assert.Equal(t, "orders", b.StringValue("topic"))
}

func TestMessageApplyTraits(t *testing.T) {
	headers := &Schema{Body: map[string]any{"type": "object"}}
	msg := &Message{
		Name:     "orderPlaced",
		Bindings: NewBindings(Binding{Name: "kafka", Protocols: ProtocolFamily("kafka"), Properties: map[string]any{"key": "own"}}),
		Traits:   []*MessageTrait{{Name: "ignored"}},
	}
	merged := msg.ApplyTraits(
		&MessageTrait{Name: "trait", ContentType: "application/json", Headers: headers},
		&MessageTrait{ContentType: "application/xml", Bindings: NewBindings(
			Binding{Name: "kafka", Protocols: ProtocolFamily("kafka"), Properties: map[string]any{"key": "trait"}},
			Binding{Name: "amqp", Protocols: ProtocolFamily("amqp")},
		)},
	)

	assert.Equal(t, "orderPlaced", merged.Name)
	assert.Equal(t, "application/json", merged.ContentType)
	assert.Same(t, headers, merged.Headers)
	assert.Nil(t, merged.Traits)
	require.Len(t, merged.Bindings.Items, 2)
	assert.Equal(t, "own", merged.Bindings.Items[0].StringValue("key"))
	assert.Equal(t, "amqp", merged.Bindings.Items[1].Name)

	assert.Len(t, msg.Traits, 1)
	assert.Len(t, msg.Bindings.Items, 1)
}

func TestOperationApplyTraits(t *testing.T) {
	op := &Operation{Action: ActionSend, Summary: "own"}
	merged := op.ApplyTraits(nil, &OperationTrait{Summary: "trait", Description: "from trait"})
	assert.Equal(t, "own", merged.Summary)
	assert.Equal(t, "from trait", merged.Description)
	assert.Equal(t, ActionSend, merged.Action)

	var nilOp *Operation
	assert.Nil(t, nilOp.ApplyTraits())
}
