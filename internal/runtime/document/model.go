// Package document holds the AsyncAPI document model. A Document is built once
// by Load and is read-only afterwards, so it can be shared by concurrent
// publish and subscribe calls. Cross references are kept as pointer strings and
// resolved lazily by the reference package.
package document

import (
	"fmt"
	"strings"
)

// Action is the direction of an operation from the point of view of the
// described application.
type Action string

const (
	// ActionSend means the application sends messages: clients consume them.
	ActionSend Action = "send"
	// ActionReceive means the application receives messages: clients publish them.
	ActionReceive Action = "receive"
)

// Reference is a pointer string into the document graph, e.g. "#/channels/foo".
type Reference struct {
	Ref string `yaml:"$ref" json:"$ref"`
}

func (r Reference) String() string { return r.Ref }

// IsZero reports whether the reference is empty.
func (r Reference) IsZero() bool { return r.Ref == "" }

// Document is the root of an AsyncAPI document.
type Document struct {
	AsyncAPI           string                `yaml:"asyncapi"`
	ID                 string                `yaml:"id,omitempty"`
	DefaultContentType string                `yaml:"defaultContentType,omitempty"`
	Info               Info                  `yaml:"info"`
	Servers            map[string]*Server    `yaml:"servers,omitempty"`
	Channels           map[string]*Channel   `yaml:"channels,omitempty"`
	Operations         map[string]*Operation `yaml:"operations,omitempty"`
	Components         *Components           `yaml:"components,omitempty"`

	// Raw is the generic tree the document was decoded from.
	Raw map[string]any `yaml:"-"`
}

// Info carries the document metadata.
type Info struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
}

// MajorVersion returns the major AsyncAPI version of the document.
func (d *Document) MajorVersion() int {
	if d == nil || d.AsyncAPI == "" {
		return 0
	}
	var major int
	if _, err := fmt.Sscanf(d.AsyncAPI, "%d", &major); err != nil {
		return 0
	}
	return major
}

// SchemaDefinitions returns the raw components.schemas tree, used to resolve
// "#/components/schemas/..." references from inside schemas.
func (d *Document) SchemaDefinitions() map[string]any {
	if d == nil || d.Raw == nil {
		return nil
	}
	components, _ := d.Raw["components"].(map[string]any)
	if components == nil {
		return nil
	}
	schemas, _ := components["schemas"].(map[string]any)
	return schemas
}

// Server describes a message broker or endpoint.
type Server struct {
	Ref             string                     `yaml:"$ref,omitempty"`
	Host            string                     `yaml:"host,omitempty"`
	Pathname        string                     `yaml:"pathname,omitempty"`
	Protocol        string                     `yaml:"protocol,omitempty"`
	ProtocolVersion string                     `yaml:"protocolVersion,omitempty"`
	Title           string                     `yaml:"title,omitempty"`
	Description     string                     `yaml:"description,omitempty"`
	Variables       map[string]*ServerVariable `yaml:"variables,omitempty"`
	Bindings        *Bindings                  `yaml:"bindings,omitempty"`
}

func (s *Server) GetRef() string { return s.Ref }

// URL renders protocol://host/pathname without interpolating variables.
func (s *Server) URL() string {
	if s == nil {
		return ""
	}
	u := s.Host
	if s.Protocol != "" {
		u = s.Protocol + "://" + u
	}
	if s.Pathname != "" {
		u += "/" + strings.TrimPrefix(s.Pathname, "/")
	}
	return u
}

// ServerVariable is a named placeholder of a server host or pathname.
type ServerVariable struct {
	Ref         string   `yaml:"$ref,omitempty"`
	Default     string   `yaml:"default,omitempty"`
	Enum        []string `yaml:"enum,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Examples    []string `yaml:"examples,omitempty"`
}

func (v *ServerVariable) GetRef() string { return v.Ref }

// Channel is an addressable destination.
type Channel struct {
	Ref         string                `yaml:"$ref,omitempty"`
	Address     *string               `yaml:"address,omitempty"`
	Title       string                `yaml:"title,omitempty"`
	Description string                `yaml:"description,omitempty"`
	Messages    map[string]*Message   `yaml:"messages,omitempty"`
	Parameters  map[string]*Parameter `yaml:"parameters,omitempty"`
	Servers     []Reference           `yaml:"servers,omitempty"`
	Bindings    *Bindings             `yaml:"bindings,omitempty"`
}

func (c *Channel) GetRef() string { return c.Ref }

// AddressTemplate returns the channel address, or an empty string when the
// address is unknown.
func (c *Channel) AddressTemplate() string {
	if c == nil || c.Address == nil {
		return ""
	}
	return *c.Address
}

// Parameter describes a "{name}" placeholder of a channel address.
type Parameter struct {
	Ref         string   `yaml:"$ref,omitempty"`
	Location    string   `yaml:"location,omitempty"`
	Default     string   `yaml:"default,omitempty"`
	Enum        []string `yaml:"enum,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Examples    []string `yaml:"examples,omitempty"`
}

func (p *Parameter) GetRef() string { return p.Ref }

// Operation is a send or receive contract bound to a channel.
type Operation struct {
	Ref         string            `yaml:"$ref,omitempty"`
	Action      Action            `yaml:"action,omitempty"`
	Channel     Reference         `yaml:"channel,omitempty"`
	Title       string            `yaml:"title,omitempty"`
	Summary     string            `yaml:"summary,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Messages    []Reference       `yaml:"messages,omitempty"`
	Bindings    *Bindings         `yaml:"bindings,omitempty"`
	Reply       *OperationReply   `yaml:"reply,omitempty"`
	Traits      []*OperationTrait `yaml:"traits,omitempty"`
}

func (o *Operation) GetRef() string { return o.Ref }

// OperationReply describes the response of a request/reply operation.
type OperationReply struct {
	Ref      string                 `yaml:"$ref,omitempty"`
	Address  *OperationReplyAddress `yaml:"address,omitempty"`
	Channel  *Reference             `yaml:"channel,omitempty"`
	Messages []Reference            `yaml:"messages,omitempty"`
}

func (r *OperationReply) GetRef() string { return r.Ref }

// OperationReplyAddress locates the reply address inside the request message.
type OperationReplyAddress struct {
	Ref         string `yaml:"$ref,omitempty"`
	Location    string `yaml:"location,omitempty"`
	Description string `yaml:"description,omitempty"`
}

func (a *OperationReplyAddress) GetRef() string { return a.Ref }

// OperationTrait holds operation fields reused by several operations.
type OperationTrait struct {
	Ref         string    `yaml:"$ref,omitempty"`
	Title       string    `yaml:"title,omitempty"`
	Summary     string    `yaml:"summary,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Bindings    *Bindings `yaml:"bindings,omitempty"`
}

func (t *OperationTrait) GetRef() string { return t.Ref }

// Message describes one message shape.
type Message struct {
	Ref           string          `yaml:"$ref,omitempty"`
	Name          string          `yaml:"name,omitempty"`
	Title         string          `yaml:"title,omitempty"`
	Summary       string          `yaml:"summary,omitempty"`
	ContentType   string          `yaml:"contentType,omitempty"`
	Headers       *Schema         `yaml:"headers,omitempty"`
	Payload       *Schema         `yaml:"payload,omitempty"`
	CorrelationID *CorrelationID  `yaml:"correlationId,omitempty"`
	Bindings      *Bindings       `yaml:"bindings,omitempty"`
	Traits        []*MessageTrait `yaml:"traits,omitempty"`
}

func (m *Message) GetRef() string { return m.Ref }

// MessageTrait holds message fields reused by several messages.
type MessageTrait struct {
	Ref           string         `yaml:"$ref,omitempty"`
	Name          string         `yaml:"name,omitempty"`
	Title         string         `yaml:"title,omitempty"`
	Summary       string         `yaml:"summary,omitempty"`
	ContentType   string         `yaml:"contentType,omitempty"`
	Headers       *Schema        `yaml:"headers,omitempty"`
	CorrelationID *CorrelationID `yaml:"correlationId,omitempty"`
	Bindings      *Bindings      `yaml:"bindings,omitempty"`
}

func (t *MessageTrait) GetRef() string { return t.Ref }

// CorrelationID locates the value used to correlate related messages.
type CorrelationID struct {
	Ref         string `yaml:"$ref,omitempty"`
	Location    string `yaml:"location,omitempty"`
	Description string `yaml:"description,omitempty"`
}

func (c *CorrelationID) GetRef() string { return c.Ref }

// Components holds the reusable objects of a document.
type Components struct {
	Servers           map[string]*Server                `yaml:"servers,omitempty"`
	ServerVariables   map[string]*ServerVariable        `yaml:"serverVariables,omitempty"`
	Channels          map[string]*Channel               `yaml:"channels,omitempty"`
	Operations        map[string]*Operation             `yaml:"operations,omitempty"`
	Messages          map[string]*Message               `yaml:"messages,omitempty"`
	Schemas           map[string]*Schema                `yaml:"schemas,omitempty"`
	Parameters        map[string]*Parameter             `yaml:"parameters,omitempty"`
	CorrelationIDs    map[string]*CorrelationID         `yaml:"correlationIds,omitempty"`
	Replies           map[string]*OperationReply        `yaml:"replies,omitempty"`
	ReplyAddresses    map[string]*OperationReplyAddress `yaml:"replyAddresses,omitempty"`
	ServerBindings    map[string]*Bindings              `yaml:"serverBindings,omitempty"`
	ChannelBindings   map[string]*Bindings              `yaml:"channelBindings,omitempty"`
	OperationBindings map[string]*Bindings              `yaml:"operationBindings,omitempty"`
	MessageBindings   map[string]*Bindings              `yaml:"messageBindings,omitempty"`
	MessageTraits     map[string]*MessageTrait          `yaml:"messageTraits,omitempty"`
	OperationTraits   map[string]*OperationTrait        `yaml:"operationTraits,omitempty"`
}
