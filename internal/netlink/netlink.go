// Package netlink brings up the wireless association the broker session rides
// on. It is only used on the boot path; afterwards recovery is left to the
// broker reconnect policy and the network stack underneath it.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
)

var ErrNoAddress = errors.New("interface has no usable address")

type Status int

const (
	StatusIdle Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "CONNECTED"
	}
	return "IDLE"
}

// Station is a wireless interface able to join a network.
type Station interface {
	Begin(ssid, psk string) error
	Status() Status
	LocalIP() net.IP
}

// BringUp starts the association and blocks until the station reports
// CONNECTED, polling every poll interval. It only gives up when ctx is done.
func BringUp(ctx context.Context, st Station, ssid, psk string, poll time.Duration,
	sl clock.Sleeper, logger *slog.Logger) (net.IP, error) {
	logger.Info("connecting to WiFi", "ssid", ssid)
	if err := st.Begin(ssid, psk); err != nil {
		return nil, fmt.Errorf("wifi begin %s: %w", ssid, err)
	}

	polls := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		if st.Status() != StatusConnected {
			polls++
			return ErrNoAddress
		}
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(poll), ctx), func(error, time.Duration) {
		if polls%10 == 0 {
			logger.Debug("waiting for WiFi association", "polls", polls)
		}
	}, clock.NewBackoffTimer(sl))
	if err != nil {
		return nil, fmt.Errorf("wifi bring-up: %w", err)
	}

	ip := st.LocalIP()
	logger.Info("WiFi connected", "ip", ip.String())
	return ip, nil
}

// InterfaceStation hands the credentials to a Supplicant and then watches a
// host network interface. It reports CONNECTED once the interface is up with
// a non-loopback IPv4 address.
type InterfaceStation struct {
	name       string
	supplicant Supplicant
	logger     *slog.Logger
	byName     func(string) (*net.Interface, error)
	addrs      func(*net.Interface) ([]net.Addr, error)
}

func NewInterfaceStation(name string, sup Supplicant, logger *slog.Logger) *InterfaceStation {
	return &InterfaceStation{
		name:       name,
		supplicant: sup,
		logger:     logger,
		byName:     net.InterfaceByName,
		addrs:      func(i *net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

func (s *InterfaceStation) Begin(ssid, psk string) error {
	if _, err := s.byName(s.name); err != nil {
		return fmt.Errorf("interface %s: %w", s.name, err)
	}
	if err := s.supplicant.Join(s.name, ssid, psk); err != nil {
		return fmt.Errorf("join %s: %w", ssid, err)
	}
	s.logger.Debug("association started", "interface", s.name, "ssid", ssid)
	return nil
}

func (s *InterfaceStation) Status() Status {
	if s.LocalIP() == nil {
		return StatusIdle
	}
	return StatusConnected
}

func (s *InterfaceStation) LocalIP() net.IP {
	iface, err := s.byName(s.name)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return nil
	}
	addrs, err := s.addrs(iface)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
