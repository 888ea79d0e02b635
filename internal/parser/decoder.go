package parser

import (
	"encoding/json"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/models"
)

// DecodedMessage is one of ReadingMessage, BatchMessage or CommandResponseMessage.
type DecodedMessage interface {
	decodedMessage()
}

// ReadingMessage is a validated single-reading payload.
// Zero values of the optional fields mean the device did not send them.
type ReadingMessage struct {
	SensorID  *int64
	Value     float64
	Timestamp *time.Time
	Parameter models.Parameter
	Quality   models.Quality
	Metadata  map[string]string
}

// BatchMessage is a validated batch payload. Readings may be empty.
type BatchMessage struct {
	Readings []ReadingMessage
}

// CommandResponseMessage is a validated command-response payload.
type CommandResponseMessage struct {
	models.CommandResponse
}

func (ReadingMessage) decodedMessage()         {}
func (BatchMessage) decodedMessage()           {}
func (CommandResponseMessage) decodedMessage() {}

type readingPayload struct {
	SensorID  *int64            `json:"sensorId"`
	Value     *float64          `json:"value" validate:"required"`
	Timestamp string            `json:"timestamp"`
	Parameter string            `json:"parameter" validate:"omitempty,oneof=none ph chlorine fluoride dissolved_oxygen turbidity temperature conductivity tds flow pressure level vibration voltage current power energy"`
	Quality   string            `json:"quality" validate:"omitempty,oneof=good uncertain bad simulated"`
	Metadata  map[string]string `json:"metadata"`
}

type batchPayload struct {
	Readings []readingPayload `json:"readings" validate:"required,dive"`
}

type commandResponsePayload struct {
	CommandID *int64  `json:"commandId" validate:"required"`
	Status    string  `json:"status" validate:"required,oneof=completed failed timeout"`
	Result    *string `json:"result"`
	Error     *string `json:"error"`
}

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

// Decode validates payload against the schema for action. ok is false when the
// payload is not UTF-8 JSON, violates the schema, or action carries no payload schema.
func Decode(payload []byte, action string) (DecodedMessage, bool) {
	switch action {
	case constants.ActionReadings:
		return DecodeReading(payload)
	case constants.ActionBatch:
		return DecodeBatch(payload)
	case constants.ActionCommandResponse:
		return DecodeCommandResponse(payload)
	}
	return nil, false
}

// DecodeReading decodes a readings payload.
func DecodeReading(payload []byte) (ReadingMessage, bool) {
	var p readingPayload
	if !unmarshalValid(payload, &p) {
		return ReadingMessage{}, false
	}
	return p.toMessage()
}

// DecodeBatch decodes a batch payload.
func DecodeBatch(payload []byte) (BatchMessage, bool) {
	var p batchPayload
	if !unmarshalValid(payload, &p) {
		return BatchMessage{}, false
	}

	readings := make([]ReadingMessage, 0, len(p.Readings))
	for _, rp := range p.Readings {
		msg, ok := rp.toMessage()
		if !ok {
			return BatchMessage{}, false
		}
		readings = append(readings, msg)
	}
	return BatchMessage{Readings: readings}, true
}

// DecodeCommandResponse decodes a command-response payload.
func DecodeCommandResponse(payload []byte) (CommandResponseMessage, bool) {
	var p commandResponsePayload
	if !unmarshalValid(payload, &p) {
		return CommandResponseMessage{}, false
	}
	return CommandResponseMessage{models.CommandResponse{
		CommandID: *p.CommandID,
		Status:    models.CommandStatus(p.Status),
		Result:    p.Result,
		Error:     p.Error,
	}}, true
}

func unmarshalValid(payload []byte, v any) bool {
	if !utf8.Valid(payload) {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false
	}
	if !exactKeys(payload, reflect.TypeOf(v)) {
		return false
	}
	return validate.Struct(v) == nil
}

func (p readingPayload) toMessage() (ReadingMessage, bool) {
	msg := ReadingMessage{
		SensorID:  p.SensorID,
		Value:     *p.Value,
		Parameter: models.Parameter(p.Parameter),
		Quality:   models.Quality(p.Quality),
		Metadata:  p.Metadata,
	}
	if p.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
		if err != nil {
			return ReadingMessage{}, false
		}
		msg.Timestamp = &ts
	}
	return msg, true
}
