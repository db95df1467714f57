package schema

import (
	"fmt"

	"github.com/danmuck/scpibridge/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in the frame header.
const (
	MsgDirectory uint16 = 1
	MsgCommand   uint16 = 2
	MsgReply     uint16 = 3

	// MsgInstrument is never framed on its own; it names the nested record
	// carried inside a directory payload.
	MsgInstrument uint16 = 100
)

// Field IDs.
const (
	FieldRecord uint16 = 1

	FieldName         uint16 = 10
	FieldManufacturer uint16 = 11
	FieldSerial       uint16 = 12
	FieldAddress      uint16 = 13

	FieldCommand uint16 = 20

	FieldReply uint16 = 30
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint16
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

// A directory may legitimately be empty, so it has no required fields; each
// FieldRecord it carries is validated as MsgInstrument.
var requirements = map[uint16][]Requirement{
	MsgDirectory: {},
	MsgInstrument: {
		{FieldName, tlv.TypeString},
		{FieldManufacturer, tlv.TypeString},
		{FieldSerial, tlv.TypeString},
		{FieldAddress, tlv.TypeString},
	},
	MsgCommand: {
		{FieldAddress, tlv.TypeString},
		{FieldCommand, tlv.TypeString},
	},
	MsgReply: {
		{FieldReply, tlv.TypeString},
	},
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint16, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint16("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint16("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint16("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	if messageType == MsgDirectory {
		for _, f := range tlv.GetAll(fields, FieldRecord) {
			if f.Type != tlv.TypeBytes {
				return ValidationError{MessageType: messageType, FieldID: FieldRecord, Reason: "type mismatch"}
			}
		}
	}
	log.Debug().Uint16("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate ok")
	return nil
}
