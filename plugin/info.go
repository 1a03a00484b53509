package plugin

// Static plugin metadata
const (
	Name             = "PT100 Poll Plugin"
	Version          = "1.0"
	Mode             = "poll"
	Type             = "south"
	InterfaceVersion = "1.0"
)

// Info describes the plugin to the host
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Mode      string        `json:"mode"`
	Type      string        `json:"type"`
	Interface string        `json:"interface"`
	Config    Configuration `json:"config"`
}

// Describe returns the plugin metadata together with its configuration schema
func Describe() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		Mode:      Mode,
		Type:      Type,
		Interface: InterfaceVersion,
		Config:    DefaultConfig(),
	}
}
