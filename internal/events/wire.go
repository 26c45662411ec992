package events

import (
	"encoding/binary"
	"errors"
)

// Kafka headers attached to every record published or consumed by the service.
const (
	HeaderEventType     = "event_type"
	HeaderTenantID      = "tenant_id"
	HeaderSchemaSubject = "schema_subject"
)

// ErrUnframed is returned for values that do not carry Schema Registry framing.
var ErrUnframed = errors.New("value is not schema registry framed")

const frameHeaderLen = 5

// EncodeWireFormat applies Confluent framing: magic byte 0, big-endian schema id, payload.
func EncodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame[1:frameHeaderLen], uint32(schemaID))
	copy(frame[frameHeaderLen:], payload)
	return frame
}

// DecodeWireFormat splits a framed value into schema id and payload. The
// payload aliases value.
func DecodeWireFormat(value []byte) (int, []byte, error) {
	if len(value) < frameHeaderLen || value[0] != 0 {
		return 0, nil, ErrUnframed
	}
	return int(binary.BigEndian.Uint32(value[1:frameHeaderLen])), value[frameHeaderLen:], nil
}
