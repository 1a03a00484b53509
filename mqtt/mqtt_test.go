package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/pt100-south/config"
	"github.com/eddielth/pt100-south/plugin"
)

func sampleReading() plugin.Reading {
	return plugin.Reading{
		Asset:     "PT100/temperature8",
		Timestamp: "2026-10-17T08:30:00.000000+00:00",
		Key:       "0b7b5f4e-3d0e-4c0a-9a4a-1f5b7a9a8c01",
		Readings:  map[string]float64{"temperature": 21.5},
	}
}

func TestEncoder_RoundTrip(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatCBOR, "CBOR", ""} {
		t.Run(format, func(t *testing.T) {
			encode, err := NewEncoder(format)
			require.NoError(t, err)

			payload, err := encode(sampleReading())
			require.NoError(t, err)

			got, err := DecodeReading(format, payload)
			require.NoError(t, err)
			assert.Equal(t, sampleReading(), got)
		})
	}
}

func TestEncoder_CBORIsDeterministic(t *testing.T) {
	encode, err := NewEncoder(FormatCBOR)
	require.NoError(t, err)

	r := sampleReading()
	r.Readings["resistance"] = 108.4

	first, err := encode(r)
	require.NoError(t, err)
	second, err := encode(r)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncoder_UnknownFormat(t *testing.T) {
	_, err := NewEncoder("xml")
	assert.Error(t, err)

	_, err = DecodeReading("xml", nil)
	assert.Error(t, err)
}

func TestManager_Topics(t *testing.T) {
	m := &Manager{topicPrefix: "plant/pt100"}

	assert.Equal(t, "plant/pt100/config", m.ControlTopic())
	assert.Equal(t, "plant/pt100/PT100/temperature8", m.ReadingTopic("PT100/temperature8"))
	assert.Equal(t, "plant/pt100/temperature8", m.ReadingTopic("/temperature8"))
}

func TestManager_HandleControl(t *testing.T) {
	var got map[string]string
	m := &Manager{
		topicPrefix: "pt100",
		reconfigure: func(values map[string]string) error {
			got = values
			return nil
		},
	}

	m.handleControl(m.ControlTopic(), []byte(`{"pins": "8,11", "pollInterval": 2500}`))
	assert.Equal(t, map[string]string{"pins": "8,11", "pollInterval": "2500"}, got)

	got = nil
	m.handleControl(m.ControlTopic(), []byte(`not json`))
	assert.Nil(t, got)

	// a failing callback is only logged
	m.reconfigure = func(map[string]string) error { return errors.New("invalid pin") }
	assert.NotPanics(t, func() {
		m.handleControl(m.ControlTopic(), []byte(`{"pins": "x"}`))
	})
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(config.MQTTConfig{Broker: "tcp://localhost:1883", Format: "xml"}, nil)
	assert.Error(t, err)

	_, err = NewManager(config.MQTTConfig{Format: FormatJSON}, nil)
	assert.Error(t, err)

	m, err := NewManager(config.MQTTConfig{Broker: "tcp://localhost:1883", TopicPrefix: "pt100/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pt100/config", m.ControlTopic())
}
