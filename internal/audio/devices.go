// Package audio handles Pulse device discovery, microphone capture, WAV
// framing, and clip playback.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const appName = "studyvoice"

// ErrDeviceMuted reports that the only usable input source is muted.
var ErrDeviceMuted = errors.New("audio input muted")

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// usable returns nil when the device can capture, else why not.
func (d Device) usable() error {
	switch {
	case d.Muted:
		return ErrDeviceMuted
	case !d.Available:
		return errUnavailable
	default:
		return nil
	}
}

var errUnavailable = errors.New("unavailable")

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns Pulse input sources with default and availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var sources pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sources); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sources))
	for _, source := range sources {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultSource.ID(),
		})
	}
	return devices, nil
}

// SelectDevice resolves the audio.input and audio.fallback preferences
// against the live device list.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList picks the preferred input, or the fallback when the
// preferred one is muted or unavailable. "default" and "" mean the Pulse
// default source.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}
	input = normalizePreference(input)
	fallback = normalizePreference(fallback)

	primary, err := resolvePreference(devices, input)
	if err != nil {
		if input != "" {
			return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
		}
		return Selection{}, err
	}

	reason := primary.usable()
	if reason == nil {
		return Selection{Device: primary}, nil
	}

	// A muted primary keeps ErrDeviceMuted in the chain so callers can map it.
	var cause error
	if errors.Is(reason, ErrDeviceMuted) {
		cause = ErrDeviceMuted
	}
	state := describeUnusable(reason)

	alternate, err := resolvePreference(devices, fallback)
	if err != nil {
		if fallback != "" {
			return Selection{}, errors.Join(fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, state, fallback), cause)
		}
		return Selection{}, errors.Join(fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, state, err), cause)
	}

	switch alternateReason := alternate.usable(); {
	case errors.Is(alternateReason, ErrDeviceMuted):
		return Selection{}, fmt.Errorf("audio fallback device %q is muted: %w", alternate.ID, ErrDeviceMuted)
	case alternateReason != nil:
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alternate.ID)
	}

	return Selection{
		Device:   alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, state, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

func normalizePreference(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "default" {
		return ""
	}
	return term
}

// resolvePreference returns the first device matching term, or the default
// source when term is empty.
func resolvePreference(devices []Device, term string) (Device, error) {
	for _, device := range devices {
		if term == "" && device.Default {
			return device, nil
		}
		if term != "" && deviceMatches(device, term) {
			return device, nil
		}
	}
	if term == "" {
		return Device{}, errors.New("default audio source is unavailable")
	}
	return Device{}, fmt.Errorf("no device matches %q", term)
}

func describeUnusable(reason error) string {
	if errors.Is(reason, ErrDeviceMuted) {
		return "muted"
	}
	return "unavailable"
}

// deviceMatches reports whether a lowercase search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func newPulseClient(icon string) (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName(icon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

var sourceStates = map[uint32]string{0: "running", 1: "idle", 2: "suspended"}

func sourceStateString(state uint32) string {
	if name, ok := sourceStates[state]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", state)
}

// sourceAvailable reports the active port's availability; sources without
// ports count as available.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			// PulseAudio values: unknown=0, no=1, yes=2.
			return port.Available != 1
		}
	}
	return true
}
