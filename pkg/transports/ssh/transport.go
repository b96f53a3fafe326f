// Package ssh provides the SSH transport the build workflow uses to reach a
// build host: command execution, network interface introspection for the
// host:ip resolution pass, and SFTP upload of build assets.
package ssh

import (
	"context"
	"fmt"
	"net/netip"
)

// Transport is the remote-host interface the build workflow depends on.
type Transport interface {
	// Connect establishes the SSH connection.
	Connect(ctx context.Context) error

	// Close tears the connection down and releases resources.
	Close() error

	// ExecuteCommand runs a command on the remote host and returns its
	// stdout and stderr.
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// InterfaceAddrs lists the addresses configured on the remote host's
	// network interfaces, with their prefix lengths.
	InterfaceAddrs(ctx context.Context) ([]netip.Prefix, error)

	// UploadFile copies a local file to the remote host via SFTP.
	UploadFile(ctx context.Context, localPath, remotePath string, mode uint32) error
}

// TransportError wraps a transport failure with the operation that hit it.
type TransportError struct {
	Op          string
	Err         error
	IsTemporary bool
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
