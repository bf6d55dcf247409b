// Package ssh provides the SSH transport used to reach managed machines.
package ssh

import (
	"context"
	"fmt"
)

// Transport is the connection a managed machine is driven through.
// Guest detectors and capabilities never see this interface directly;
// they go through the machine layer.
type Transport interface {
	// Connect establishes the SSH connection.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and releases resources.
	Disconnect() error

	// IsConnected reports whether an active connection exists.
	IsConnected() bool

	// HealthCheck verifies the connection is alive and responsive.
	HealthCheck(ctx context.Context) error

	// ExecuteCommand runs a command on the remote machine.
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// ExecuteCommandWithSudo runs a command with sudo. sudoPassword may
	// be empty when NOPASSWD is configured.
	ExecuteCommandWithSudo(ctx context.Context, cmd string, sudoPassword string) (stdout string, stderr string, err error)

	// UploadFile uploads a file via SFTP. mode sets the remote
	// permissions.
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error

	// DownloadFile downloads a file via SFTP.
	DownloadFile(ctx context.Context, remotePath string, localPath string) error
}

// TransportError classifies a transport failure.
type TransportError struct {
	// Op is the operation that failed, e.g. "connect" or "execute".
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary marks failures that may succeed on a retry by the
	// caller; the transport itself never retries.
	IsTemporary bool

	// IsAuthError marks authentication and host-key failures.
	IsAuthError bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
