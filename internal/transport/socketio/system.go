package socketio

import (
	"os"

	"github.com/edumarques81/spotmpd/internal/domain/device"
	"github.com/edumarques81/spotmpd/internal/version"
)

// SystemInfo identifies the server to web clients.
type SystemInfo struct {
	ID              string `json:"id"`
	Host            string `json:"host"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	ServiceName     string `json:"serviceName"`
	SystemVersion   string `json:"systemversion"`
	ProtocolVersion string `json:"protocolVersion"`
	BuildDate       string `json:"builddate"`
}

// GetSystemInfo describes this server under the given identity.
func GetSystemInfo(id device.Identity) SystemInfo {
	v := version.GetInfo()
	info := SystemInfo{
		ID:              id.UUID,
		Name:            id.Name,
		Type:            "mpd_bridge",
		ServiceName:     v.Name,
		SystemVersion:   v.Version,
		ProtocolVersion: v.ProtocolVersion,
		BuildDate:       v.BuildTime,
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Host = hostname
	}
	return info
}
