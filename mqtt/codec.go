package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/eddielth/pt100-south/plugin"
)

// Payload formats
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

var readingEncMode cbor.EncMode

func init() {
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}

	var err error
	readingEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create reading CBOR encoder mode: %v", err))
	}
}

// Encoder serialises a reading for publishing
type Encoder func(reading plugin.Reading) ([]byte, error)

// NewEncoder returns the encoder of format
func NewEncoder(format string) (Encoder, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return func(reading plugin.Reading) ([]byte, error) {
			return json.Marshal(reading)
		}, nil
	case FormatCBOR:
		return func(reading plugin.Reading) ([]byte, error) {
			return readingEncMode.Marshal(reading)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported payload format: %s", format)
	}
}

// DecodeReading decodes a payload produced by the encoder of format
func DecodeReading(format string, payload []byte) (plugin.Reading, error) {
	var reading plugin.Reading
	var err error

	switch strings.ToLower(format) {
	case "", FormatJSON:
		err = json.Unmarshal(payload, &reading)
	case FormatCBOR:
		err = cbor.Unmarshal(payload, &reading)
	default:
		err = fmt.Errorf("unsupported payload format: %s", format)
	}

	return reading, err
}
