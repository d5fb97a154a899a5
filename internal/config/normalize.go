// internal/config/normalize.go
package config

import (
	"strconv"
	"strings"
)

// supportedBaudRates lists the serial rates the transport layer can
// actually configure the line to.
var supportedBaudRates = map[int]bool{
	9600: true, 19200: true, 38400: true, 57600: true, 115200: true,
}

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if !supportedBaudRates[cfg.Connection.BaudRate] {
		cfg.Connection.BaudRate = 9600
	}

	// No other normalization is performed here. Per-table collection
	// defaults (file_span_secs, sample_int_secs) are already applied
	// by Load; vtime escalation belongs to the transport's retry step.
}

// ApplyOverride applies a "-p" CLI override of the form
// "/dev/tty*[,baud]" onto a loaded configuration: the device path
// always replaces port_name, and a trailing baud rate replaces
// baud_rate when present.
func ApplyOverride(cfg *Config, portOverride string) {
	if cfg == nil || portOverride == "" {
		return
	}
	device, baudStr, hasBaud := strings.Cut(portOverride, ",")
	if hasBaud {
		if baud, err := strconv.Atoi(baudStr); err == nil && baud > 0 {
			cfg.Connection.BaudRate = baud
		}
	}
	cfg.Connection.PortName = device
}
