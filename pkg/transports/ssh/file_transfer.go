package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// UploadFile implements Transport. The build workflow uses it to push
// provisioning assets (cloud-init snippets, authorized keys) onto the build
// host before Packer takes over.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, mode uint32) error {
	c.mu.Lock()
	client := c.sshClient
	c.mu.Unlock()
	if client == nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("not connected")}
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("open sftp: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: err}
	}
	defer local.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("create %s: %w", dir, err)}
		}
	}

	remote, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("create %s: %w", remotePath, err)}
	}
	defer remote.Close()

	written, err := io.Copy(remote, local)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("copy to %s: %w", remotePath, err), IsTemporary: true}
	}

	if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("chmod %s: %w", remotePath, err)}
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Msg("file uploaded")
	return nil
}
