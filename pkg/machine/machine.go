// Package machine models managed machines: inventory entries with an
// SSH transport attached. A Machine satisfies the guest.Machine
// interface consumed by the guest resolver.
package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gantry-io/gantry/pkg/transports/ssh"
)

// Config is the inventory configuration of one machine.
type Config struct {
	// Name is the human-readable machine name, unique in the inventory.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Address is the hostname or IP address.
	Address string `yaml:"address" json:"address" validate:"required"`

	// Port is the SSH port. Zero means 22.
	Port int `yaml:"port" json:"port" validate:"gte=0,lte=65535"`

	// User is the SSH username.
	User string `yaml:"user" json:"user" validate:"required"`

	// KeyPath is the SSH private key path. Empty falls back to the
	// default key locations.
	KeyPath string `yaml:"key_path" json:"key_path"`

	// Password enables password authentication when set.
	Password string `yaml:"password" json:"password"`

	// SudoPassword is used for capabilities that escalate. Empty
	// assumes NOPASSWD sudo.
	SudoPassword string `yaml:"sudo_password" json:"sudo_password"`

	// Guest pins the guest OS family, skipping autodetection. Empty
	// means autodetect.
	Guest string `yaml:"guest" json:"guest"`

	// Labels are key-value pairs used for selection and policy input.
	Labels map[string]string `yaml:"labels" json:"labels"`

	// ConnectTimeout bounds SSH connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// CommandTimeout bounds each remote command.
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`

	// InsecureHostKey disables strict host key checking.
	InsecureHostKey bool `yaml:"insecure_host_key" json:"insecure_host_key"`
}

// Machine is a managed machine with a live transport.
type Machine struct {
	// ID is the stable machine identifier.
	ID string

	// Config is the inventory entry this machine was built from.
	Config Config

	transport ssh.Transport
	logger    zerolog.Logger
}

// New builds a machine and its SSH transport from an inventory entry.
// The transport is not connected yet; call Connect.
func New(cfg Config, logger zerolog.Logger) (*Machine, error) {
	sshCfg := ssh.DefaultConfig(cfg.Address, cfg.User)
	if cfg.Port != 0 {
		sshCfg.Port = cfg.Port
	}
	if cfg.KeyPath != "" {
		sshCfg.PrivateKeyPath = cfg.KeyPath
	}
	if cfg.Password != "" {
		sshCfg.AuthMethod = ssh.AuthMethodPassword
		sshCfg.Password = cfg.Password
	}
	if cfg.ConnectTimeout > 0 {
		sshCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.CommandTimeout > 0 {
		sshCfg.CommandTimeout = cfg.CommandTimeout
	}
	if cfg.InsecureHostKey {
		sshCfg.StrictHostKeyChecking = false
	}

	transport, err := ssh.NewClient(sshCfg)
	if err != nil {
		return nil, fmt.Errorf("machine %s: %w", cfg.Name, err)
	}

	return &Machine{
		ID:        uuid.New().String(),
		Config:    cfg,
		transport: transport,
		logger:    logger.With().Str("machine", cfg.Name).Logger(),
	}, nil
}

// NewWithTransport builds a machine over an existing transport. Used by
// tests and by callers that manage connections themselves.
func NewWithTransport(cfg Config, transport ssh.Transport, logger zerolog.Logger) *Machine {
	return &Machine{
		ID:        uuid.New().String(),
		Config:    cfg,
		transport: transport,
		logger:    logger.With().Str("machine", cfg.Name).Logger(),
	}
}

// Connect establishes the machine's transport connection.
func (m *Machine) Connect(ctx context.Context) error {
	if err := m.transport.Connect(ctx); err != nil {
		return fmt.Errorf("machine %s: %w", m.Config.Name, err)
	}
	m.logger.Debug().Str("address", m.Config.Address).Msg("machine connected")
	return nil
}

// Close disconnects the machine's transport.
func (m *Machine) Close() error {
	return m.transport.Disconnect()
}

// ExplicitGuest returns the pinned guest ID, or "" for autodetection.
// Implements guest.Machine.
func (m *Machine) ExplicitGuest() string {
	return m.Config.Guest
}

// Run executes a command on the machine. Implements guest.Machine.
func (m *Machine) Run(ctx context.Context, cmd string) (string, string, error) {
	return m.transport.ExecuteCommand(ctx, cmd)
}

// RunSudo executes a command with privilege escalation.
func (m *Machine) RunSudo(ctx context.Context, cmd string) (string, string, error) {
	return m.transport.ExecuteCommandWithSudo(ctx, cmd, m.Config.SudoPassword)
}

// Upload copies a local file to the machine via SFTP.
func (m *Machine) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	return m.transport.UploadFile(ctx, localPath, remotePath, mode)
}

// Download copies a remote file from the machine via SFTP.
func (m *Machine) Download(ctx context.Context, remotePath, localPath string) error {
	return m.transport.DownloadFile(ctx, remotePath, localPath)
}

// Labels returns the machine's labels, never nil.
func (m *Machine) Labels() map[string]string {
	if m.Config.Labels == nil {
		return map[string]string{}
	}
	return m.Config.Labels
}
