package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// UploadFile uploads a single file to the remote machine via SFTP.
func (c *Client) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error {
	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer local.Close()

	if dir := filepath.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err), IsTemporary: true}
		}
	}

	remote, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}
	defer remote.Close()

	written, err := io.Copy(remote, local)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}

	if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to set permissions: %w", err)}
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Msg("file uploaded")

	return nil
}

// DownloadFile downloads a single file from the remote machine via SFTP.
func (c *Client) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	remote, err := sftpClient.Open(remotePath)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to open remote file: %w", err), IsTemporary: true}
	}
	defer remote.Close()

	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &TransportError{Op: "download", Err: fmt.Errorf("failed to create local directory: %w", err)}
		}
	}

	local, err := os.Create(localPath)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to create local file: %w", err)}
	}
	defer local.Close()

	written, err := io.Copy(local, remote)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}

	log.Debug().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", written).
		Msg("file downloaded")

	return nil
}

// newSFTPClient opens an SFTP session on the current connection.
func (c *Client) newSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	return sftpClient, nil
}
