package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/scpibridge/internal/protocol/frame"
	"github.com/danmuck/scpibridge/internal/protocol/schema"
	"github.com/danmuck/scpibridge/internal/protocol/tlv"
)

var (
	ErrUnexpectedMessage = errors.New("session: unexpected message type")
	ErrInvalidCommand    = errors.New("session: invalid command envelope")
)

// Instrument is the wire shape of one directory record.
type Instrument struct {
	Name         string
	Manufacturer string
	Serial       string
	Address      string
}

// Command is the operator->hub envelope.
type Command struct {
	Address string
	Command string
}

func (c Command) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("%w: missing command", ErrInvalidCommand)
	}
	return nil
}

// Reply is the hub->operator answer to a query. IsError marks text that
// describes a failure rather than an instrument response.
type Reply struct {
	Text    string
	IsError bool
}

func EncodeDirectory(messageID uint64, instruments []Instrument) (frame.Frame, error) {
	fields := make([]tlv.Field, 0, len(instruments))
	for _, inst := range instruments {
		fields = append(fields, tlv.Nested(schema.FieldRecord, []tlv.Field{
			tlv.String(schema.FieldName, inst.Name),
			tlv.String(schema.FieldManufacturer, inst.Manufacturer),
			tlv.String(schema.FieldSerial, inst.Serial),
			tlv.String(schema.FieldAddress, inst.Address),
		}))
	}
	if err := schema.Validate(schema.MsgDirectory, fields); err != nil {
		return frame.Frame{}, err
	}
	return newFrame(messageID, schema.MsgDirectory, 0, fields), nil
}

func DecodeDirectory(f frame.Frame) ([]Instrument, error) {
	fields, err := decodeAs(f, schema.MsgDirectory)
	if err != nil {
		return nil, err
	}
	records := tlv.GetAll(fields, schema.FieldRecord)
	out := make([]Instrument, 0, len(records))
	for i, rec := range records {
		inner, err := tlv.DecodeFields(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("session: directory record %d: %w", i, err)
		}
		if err := schema.Validate(schema.MsgInstrument, inner); err != nil {
			return nil, fmt.Errorf("session: directory record %d: %w", i, err)
		}
		out = append(out, Instrument{
			Name:         tlv.GetString(inner, schema.FieldName),
			Manufacturer: tlv.GetString(inner, schema.FieldManufacturer),
			Serial:       tlv.GetString(inner, schema.FieldSerial),
			Address:      tlv.GetString(inner, schema.FieldAddress),
		})
	}
	return out, nil
}

func EncodeCommand(messageID uint64, cmd Command) (frame.Frame, error) {
	if err := cmd.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldAddress, cmd.Address),
		tlv.String(schema.FieldCommand, cmd.Command),
	}
	return newFrame(messageID, schema.MsgCommand, 0, fields), nil
}

func DecodeCommand(f frame.Frame) (Command, error) {
	fields, err := decodeAs(f, schema.MsgCommand)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{
		Address: tlv.GetString(fields, schema.FieldAddress),
		Command: tlv.GetString(fields, schema.FieldCommand),
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// EncodeReply answers the command frame identified by messageID.
func EncodeReply(messageID uint64, reply Reply) frame.Frame {
	var flags uint32
	if reply.IsError {
		flags |= frame.FlagIsError
	}
	return newFrame(messageID, schema.MsgReply, flags, []tlv.Field{
		tlv.String(schema.FieldReply, reply.Text),
	})
}

func DecodeReply(f frame.Frame) (Reply, error) {
	fields, err := decodeAs(f, schema.MsgReply)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:    tlv.GetString(fields, schema.FieldReply),
		IsError: f.IsError(),
	}, nil
}

func newFrame(messageID uint64, messageType uint16, flags uint32, fields []tlv.Field) frame.Frame {
	return frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}
}

func decodeAs(f frame.Frame, messageType uint16) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("%w: got %d want %d", ErrUnexpectedMessage, f.Header.MessageType, messageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}
