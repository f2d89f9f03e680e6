package netlink

import (
	"errors"
	"testing"

	"github.com/Wifx/gonetworkmanager/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNM struct {
	devErr   error
	iface    string
	profiles []map[string]map[string]interface{}
}

func (f *fakeNM) GetDeviceByIpIface(iface string) (gonetworkmanager.Device, error) {
	f.iface = iface
	return nil, f.devErr
}

func (f *fakeNM) AddAndActivateConnection(c map[string]map[string]interface{}, _ gonetworkmanager.Device) (gonetworkmanager.ActiveConnection, error) {
	f.profiles = append(f.profiles, c)
	return nil, nil
}

func newTestNetworkManager(nm *fakeNM) *NetworkManager {
	m := NewNetworkManager(quiet)
	m.connect = func() (nmClient, error) { return nm, nil }
	return m
}

func TestNetworkManagerJoinAppliesPSK(t *testing.T) {
	nm := &fakeNM{}
	require.NoError(t, newTestNetworkManager(nm).Join("wlan0", "smartbin", "hunter22"))

	assert.Equal(t, "wlan0", nm.iface)
	require.Len(t, nm.profiles, 1)
	p := nm.profiles[0]
	assert.Equal(t, []byte("smartbin"), p["802-11-wireless"]["ssid"])
	assert.Equal(t, "802-11-wireless-security", p["802-11-wireless"]["security"])
	assert.Equal(t, "wpa-psk", p["802-11-wireless-security"]["key-mgmt"])
	assert.Equal(t, "hunter22", p["802-11-wireless-security"]["psk"])
}

func TestNetworkManagerJoinDeviceError(t *testing.T) {
	nm := &fakeNM{devErr: errors.New("no device found for interface")}
	err := newTestNetworkManager(nm).Join("wlan9", "smartbin", "hunter22")
	assert.ErrorContains(t, err, "wlan9")
	assert.Empty(t, nm.profiles)
}

func TestNetworkManagerUnavailable(t *testing.T) {
	m := NewNetworkManager(quiet)
	m.connect = func() (nmClient, error) { return nil, errors.New("dbus: connection refused") }
	assert.Error(t, m.Join("wlan0", "smartbin", ""))
}

func TestWirelessProfileOpenNetwork(t *testing.T) {
	p := WirelessProfile("smartbin", "")
	assert.NotContains(t, p, "802-11-wireless-security")
	assert.NotContains(t, p["802-11-wireless"], "security")
	assert.Equal(t, "auto", p["ipv4"]["method"])

	id, ok := p["connection"]["uuid"].(string)
	require.True(t, ok)
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, WirelessProfile("smartbin", "")["connection"]["uuid"], "fresh uuid per profile")
}
