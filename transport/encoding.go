package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/asyncflow/internal/runtime/ids"
	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
	"github.com/drblury/asyncflow/internal/runtime/metadata"
)

// Content types recognised by EncodePayload.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeText     = "text/plain"
	ContentTypeBinary   = "application/octet-stream"
)

// EncodePayload renders payload as bytes. Raw bytes and strings are sent
// verbatim, protobuf messages use binary encoding when contentType asks for
// protobuf and protojson otherwise, and every other value is JSON encoded. The
// returned content type is contentType, or the one implied by the encoding.
func EncodePayload(payload any, contentType string) ([]byte, string, error) {
	switch typed := payload.(type) {
	case nil:
		return nil, contentType, nil
	case json.RawMessage:
		return []byte(typed), orDefault(contentType, ContentTypeJSON), nil
	case []byte:
		return typed, orDefault(contentType, ContentTypeBinary), nil
	case string:
		return []byte(typed), orDefault(contentType, ContentTypeText), nil
	case proto.Message:
		if isProtobuf(contentType) {
			data, err := proto.Marshal(typed)
			if err != nil {
				return nil, "", fmt.Errorf("encode protobuf payload: %w", err)
			}
			return data, contentType, nil
		}
		data, err := protojson.Marshal(typed)
		if err != nil {
			return nil, "", fmt.Errorf("encode protojson payload: %w", err)
		}
		return data, orDefault(contentType, ContentTypeJSON), nil
	default:
		data, err := jsoncodec.Marshal(typed)
		if err != nil {
			return nil, "", fmt.Errorf("encode json payload: %w", err)
		}
		return data, orDefault(contentType, ContentTypeJSON), nil
	}
}

// NewWatermillMessage builds the outbound Watermill message for oc. Headers are
// flattened to metadata and the reserved keys are added on top.
func NewWatermillMessage(oc OperationContext) (*message.Message, error) {
	payload, contentType, err := EncodePayload(oc.Payload(), oc.ContentType())
	if err != nil {
		return nil, err
	}
	md, err := metadata.FromHeaders(oc.Headers())
	if err != nil {
		return nil, err
	}
	md = md.With(metadata.KeyCorrelationID, oc.CorrelationID()).
		With(metadata.KeyContentType, contentType).
		With(metadata.KeyMessageName, oc.MessageName()).
		With(metadata.KeyOperationID, oc.OperationID()).
		With(metadata.KeyReplyTo, oc.ReplyAddress())

	msg := message.NewMessage(ids.NewMessageID(), payload)
	msg.Metadata = metadata.ToWatermill(md)
	return msg, nil
}

// FromWatermillMessage converts an inbound Watermill message.
func FromWatermillMessage(msg *message.Message, channel string) *Message {
	md := metadata.FromWatermill(msg.Metadata)
	sentAt, _ := ids.MessageTime(msg.UUID)
	return &Message{
		ID:            msg.UUID,
		Payload:       append([]byte(nil), msg.Payload...),
		Headers:       md.Clone(),
		CorrelationID: md[metadata.KeyCorrelationID],
		Channel:       channel,
		SentAt:        sentAt,
	}
}

func isProtobuf(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, ContentTypeProtobuf) || strings.HasPrefix(ct, "application/protobuf")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
