package netlink

import (
	"fmt"
	"log/slog"

	"github.com/Wifx/gonetworkmanager/v2"
	"github.com/google/uuid"
)

// Supplicant applies wireless credentials to an interface and starts the
// association. It does not wait for an address.
type Supplicant interface {
	Join(iface, ssid, psk string) error
}

// nmClient is the part of the NetworkManager D-Bus API needed to join a network.
type nmClient interface {
	GetDeviceByIpIface(iface string) (gonetworkmanager.Device, error)
	AddAndActivateConnection(connection map[string]map[string]interface{}, device gonetworkmanager.Device) (gonetworkmanager.ActiveConnection, error)
}

// NetworkManager joins networks through the system NetworkManager daemon.
type NetworkManager struct {
	connect func() (nmClient, error)
	logger  *slog.Logger
}

func NewNetworkManager(logger *slog.Logger) *NetworkManager {
	return &NetworkManager{
		connect: func() (nmClient, error) {
			nm, err := gonetworkmanager.NewNetworkManager()
			if err != nil {
				return nil, err
			}
			return nm, nil
		},
		logger: logger,
	}
}

func (m *NetworkManager) Join(iface, ssid, psk string) error {
	nm, err := m.connect()
	if err != nil {
		return fmt.Errorf("networkmanager: %w", err)
	}
	dev, err := nm.GetDeviceByIpIface(iface)
	if err != nil {
		return fmt.Errorf("networkmanager device %s: %w", iface, err)
	}
	if _, err := nm.AddAndActivateConnection(WirelessProfile(ssid, psk), dev); err != nil {
		return fmt.Errorf("activate %s on %s: %w", ssid, iface, err)
	}
	m.logger.Info("wireless profile activated", "interface", iface, "ssid", ssid, "secured", psk != "")
	return nil
}

// WirelessProfile is the NetworkManager connection for ssid with DHCP on
// IPv4. An empty psk describes an open network.
func WirelessProfile(ssid, psk string) map[string]map[string]interface{} {
	profile := map[string]map[string]interface{}{
		"connection": {
			"id":          ssid,
			"uuid":        uuid.NewString(),
			"type":        "802-11-wireless",
			"autoconnect": true,
		},
		"802-11-wireless": {
			"ssid": []byte(ssid),
			"mode": "infrastructure",
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "ignore"},
	}
	if psk != "" {
		profile["802-11-wireless"]["security"] = "802-11-wireless-security"
		profile["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      psk,
		}
	}
	return profile
}
