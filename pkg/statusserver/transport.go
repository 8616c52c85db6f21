package statusserver

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/core-tools/hsu-proctree/pkg/errors"
)

// TransportType defines the type of transport for the status server
type TransportType string

const (
	TransportUDS TransportType = "uds"
	TransportTCP TransportType = "tcp"
)

// TransportConfig configures the status server transport
type TransportConfig struct {
	TransportType TransportType

	// Unix domain socket path
	SocketPath string

	// TCP address (host:port)
	TCPAddress string

	// Unix socket file permissions
	FileMode os.FileMode
}

// ParseAddress accepts "unix:///path/to.sock", "tcp://host:port" or a bare "host:port"
func ParseAddress(address string) (TransportConfig, error) {
	switch {
	case strings.HasPrefix(address, "unix://"):
		path := strings.TrimPrefix(address, "unix://")
		if path == "" {
			return TransportConfig{}, errors.NewValidationError("socket path is required", nil).WithContext("address", address)
		}
		return TransportConfig{TransportType: TransportUDS, SocketPath: path}, nil
	case strings.HasPrefix(address, "tcp://"):
		address = strings.TrimPrefix(address, "tcp://")
	case strings.Contains(address, "://"):
		return TransportConfig{}, errors.NewValidationError("unsupported address scheme", nil).WithContext("address", address)
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		return TransportConfig{}, errors.NewValidationError("invalid TCP address", err).WithContext("address", address)
	}
	return TransportConfig{TransportType: TransportTCP, TCPAddress: address}, nil
}

// CreateListener creates a network listener based on the transport configuration
func CreateListener(config TransportConfig) (net.Listener, error) {
	switch config.TransportType {
	case TransportUDS:
		return createUDSListener(config)
	case TransportTCP:
		return createTCPListener(config)
	default:
		return nil, errors.NewValidationError("invalid transport type", nil).
			WithContext("transport_type", config.TransportType)
	}
}

func createUDSListener(config TransportConfig) (net.Listener, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.NewUnsupportedError("Unix domain sockets are not supported on Windows, use TCP instead", nil)
	}

	// Remove a stale socket left by a previous run
	if err := os.Remove(config.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.NewIOError("failed to remove existing socket file", err).WithContext("path", config.SocketPath)
	}
	if err := os.MkdirAll(filepath.Dir(config.SocketPath), 0o755); err != nil {
		return nil, errors.NewIOError("failed to create socket directory", err).WithContext("path", config.SocketPath)
	}

	listener, err := net.Listen("unix", config.SocketPath)
	if err != nil {
		return nil, errors.NewIOError("failed to create Unix domain socket listener", err).WithContext("path", config.SocketPath)
	}

	fileMode := config.FileMode
	if fileMode == 0 {
		fileMode = 0o600
	}
	if err := os.Chmod(config.SocketPath, fileMode); err != nil {
		listener.Close()
		return nil, errors.NewIOError("failed to set socket file permissions", err).WithContext("path", config.SocketPath)
	}

	return listener, nil
}

func createTCPListener(config TransportConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.TCPAddress)
	if err != nil {
		return nil, errors.NewIOError("failed to create TCP listener", err).WithContext("address", config.TCPAddress)
	}
	return listener, nil
}

// GetListenerAddress returns a string representation of the listener address
func GetListenerAddress(listener net.Listener) string {
	addr := listener.Addr()
	switch addr.Network() {
	case "tcp":
		return fmt.Sprintf("tcp://%s", addr.String())
	case "unix":
		return fmt.Sprintf("unix://%s", addr.String())
	default:
		return addr.String()
	}
}
