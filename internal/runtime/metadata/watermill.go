package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies the metadata of an inbound Watermill message.
func FromWatermill(md message.Metadata) Metadata {
	return Metadata(md).Clone()
}

// ToWatermill copies m into the metadata of an outbound Watermill message.
func ToWatermill(m Metadata) message.Metadata {
	return message.Metadata(m.Clone())
}
