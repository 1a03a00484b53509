// Package transformer runs JavaScript transforms over readings before they leave the service.
package transformer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/eddielth/pt100-south/config"
	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

// Wildcard is the transformer key applied to assets without their own script
const Wildcard = "*"

// Manager holds one transformer per asset name. Asset names are matched
// case-insensitively since viper lowercases map keys.
type Manager struct {
	transformers map[string]*Transformer
	mutex        sync.RWMutex
}

// Transformer is a compiled transform script.
// A goja runtime is not goroutine safe, so calls are serialised.
type Transformer struct {
	mu         sync.Mutex
	vm         *goja.Runtime
	transform  goja.Callable
	scriptPath string
}

// NewManager compiles a transformer for every configured asset
func NewManager(configs map[string]config.Transformer) (*Manager, error) {
	manager := &Manager{
		transformers: make(map[string]*Transformer),
	}

	for asset, cfg := range configs {
		transformer, err := load(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create transformer for asset %s: %w", asset, err)
		}

		manager.transformers[strings.ToLower(asset)] = transformer
		logger.Info("loaded transformer for asset %s", asset)
	}

	return manager, nil
}

func load(cfg config.Transformer) (*Transformer, error) {
	var scriptCode string

	// Inline code wins over a script file
	if cfg.ScriptCode != "" {
		scriptCode = cfg.ScriptCode
	} else if cfg.ScriptPath != "" {
		scriptBytes, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load script file %s: %w", cfg.ScriptPath, err)
		}
		scriptCode = string(scriptBytes)
	} else {
		return nil, fmt.Errorf("no script code or script path provided")
	}

	return newTransformer(scriptCode, cfg.ScriptPath)
}

// newTransformer creates a new transformer
func newTransformer(scriptCode, scriptPath string) (*Transformer, error) {
	vm := goja.New()

	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})

	_ = vm.Set("parseJSON", func(jsonStr string) interface{} {
		var data interface{}
		if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
			logger.Warn("failed to parse JSON: %v", err)
			return nil
		}
		return data
	})

	_ = vm.Set("formatDate", func(timestamp int64, format string) string {
		if format == "" {
			format = "2006-01-02 15:04:05"
		}
		return time.Unix(timestamp, 0).Format(format)
	})

	_ = vm.Set("convertTemperature", ConvertTemperature)

	_ = vm.Set("validateRange", func(value float64, min float64, max float64) bool {
		return value >= min && value <= max
	})

	if _, err := vm.RunString(scriptCode); err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}

	transformValue := vm.Get("transform")
	if transformValue == nil {
		return nil, fmt.Errorf("script does not define a 'transform' function")
	}

	transform, ok := goja.AssertFunction(transformValue)
	if !ok {
		return nil, fmt.Errorf("'transform' is not a function")
	}

	return &Transformer{
		vm:         vm,
		transform:  transform,
		scriptPath: scriptPath,
	}, nil
}

// ConvertTemperature converts value between C, F and K. Unknown units pass the value through.
func ConvertTemperature(value float64, fromUnit string, toUnit string) float64 {
	fromUnit = strings.ToUpper(fromUnit)
	toUnit = strings.ToUpper(toUnit)

	var celsius float64
	switch fromUnit {
	case "C":
		celsius = value
	case "F":
		celsius = (value - 32) * 5 / 9
	case "K":
		celsius = value - 273.15
	default:
		return value
	}

	switch toUnit {
	case "C":
		return celsius
	case "F":
		return celsius*9/5 + 32
	case "K":
		return celsius + 273.15
	default:
		return celsius
	}
}

func (m *Manager) lookup(asset string) *Transformer {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if t, ok := m.transformers[strings.ToLower(asset)]; ok {
		return t
	}
	return m.transformers[Wildcard]
}

// Transform runs the transformer of the reading's asset.
// ok is false when the script returned null or undefined to drop the reading.
func (m *Manager) Transform(reading plugin.Reading) (result plugin.Reading, ok bool, err error) {
	t := m.lookup(reading.Asset)
	if t == nil {
		return reading, true, nil
	}
	return t.apply(reading)
}

// TransformBatch transforms every reading of batch, dropping readings the scripts reject.
// A script error drops that reading and is logged.
func (m *Manager) TransformBatch(batch plugin.Batch) plugin.Batch {
	out := make(plugin.Batch, 0, len(batch))
	for _, reading := range batch {
		result, ok, err := m.Transform(reading)
		if err != nil {
			logger.Error("failed to transform reading [%s]: %v", reading.Asset, err)
			continue
		}
		if !ok {
			logger.Debug("reading [%s] dropped by transformer", reading.Asset)
			continue
		}
		out = append(out, result)
	}
	return out
}

func (t *Transformer) apply(reading plugin.Reading) (plugin.Reading, bool, error) {
	input, err := json.Marshal(reading)
	if err != nil {
		return plugin.Reading{}, false, fmt.Errorf("failed to serialize reading: %w", err)
	}

	var arg map[string]interface{}
	if err := json.Unmarshal(input, &arg); err != nil {
		return plugin.Reading{}, false, fmt.Errorf("failed to serialize reading: %w", err)
	}

	t.mu.Lock()
	value, err := t.transform(goja.Undefined(), t.vm.ToValue(arg))
	var exported interface{}
	if err == nil && !goja.IsNull(value) && !goja.IsUndefined(value) {
		exported = value.Export()
	}
	t.mu.Unlock()

	if err != nil {
		return plugin.Reading{}, false, fmt.Errorf("failed to run transform: %w", err)
	}
	if exported == nil {
		return plugin.Reading{}, false, nil
	}

	jsonData, err := json.Marshal(exported)
	if err != nil {
		return plugin.Reading{}, false, fmt.Errorf("failed to serialize JavaScript result: %w", err)
	}

	var result plugin.Reading
	if err := json.Unmarshal(jsonData, &result); err != nil {
		return plugin.Reading{}, false, fmt.Errorf("failed to parse JavaScript result as reading: %w", err)
	}

	// Identity fields survive scripts that only return readings
	if result.Asset == "" {
		result.Asset = reading.Asset
	}
	if result.Key == "" {
		result.Key = reading.Key
	}
	if result.Timestamp == "" {
		result.Timestamp = reading.Timestamp
	}

	return result, true, nil
}

// ReloadTransformer replaces the transformer of asset
func (m *Manager) ReloadTransformer(asset string, cfg config.Transformer) error {
	transformer, err := load(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	m.mutex.Lock()
	m.transformers[strings.ToLower(asset)] = transformer
	m.mutex.Unlock()

	logger.Info("reloaded transformer for asset %s", asset)
	return nil
}
