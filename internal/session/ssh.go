package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/digitalocean/go-libvirt"
	"golang.org/x/crypto/ssh"

	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// DefaultSSHPort is the guest sshd port.
const DefaultSSHPort = 22

// sshDialTimeout bounds the TCP+handshake phase of a programmatic ssh
// connection.
const sshDialTimeout = 10 * time.Second

// SSHOptions control how an ssh handle is built. Zero values fall back
// to defaults.
type SSHOptions struct {
	// User is the login name. Resolve with ResolveUser first.
	User string

	// KeyPath is the private key file. Empty means try the caller's
	// standard keys and fall back to agent/password auth.
	KeyPath string

	// Port overrides DefaultSSHPort.
	Port int
}

// SSHHandle is a ready-to-use ssh target: the guest address has been
// resolved and the key, if any, has been validated.
type SSHHandle struct {
	VMName  string
	User    string
	Addr    string
	Port    int
	KeyPath string
}

// Argv returns the ssh command line for an interactive session.
func (h *SSHHandle) Argv() []string {
	argv := []string{"ssh"}
	if h.KeyPath != "" {
		argv = append(argv, "-i", h.KeyPath)
	}
	if h.Port != DefaultSSHPort {
		argv = append(argv, "-p", strconv.Itoa(h.Port))
	}
	return append(argv, fmt.Sprintf("%s@%s", h.User, h.Addr))
}

// ClientConfig builds an x/crypto ssh client config for programmatic
// sessions. Requires a key; interactive password auth goes through
// Argv.
func (h *SSHHandle) ClientConfig() (*ssh.ClientConfig, error) {
	if h.KeyPath == "" {
		return nil, fmt.Errorf("no private key available for %s", h.VMName)
	}

	key, err := os.ReadFile(h.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key %s: %w", h.KeyPath, err)
	}

	return &ssh.ClientConfig{
		User: h.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}, nil
}

// Target returns the dialable host:port.
func (h *SSHHandle) Target() string {
	return net.JoinHostPort(h.Addr, strconv.Itoa(h.Port))
}

// OpenSSH resolves the guest address and builds an ssh handle for a
// running VM.
func (s *Layer) OpenSSH(ctx context.Context, name string, opts SSHOptions) (*SSHHandle, error) {
	addr, err := s.ResolveAddress(ctx, name)
	if err != nil {
		return nil, err
	}

	user := opts.User
	if user == "" {
		user = "root"
	}
	port := opts.Port
	if port == 0 {
		port = DefaultSSHPort
	}

	keyPath := opts.KeyPath
	if keyPath == "" {
		// Best-effort: no standard key just means agent/password auth.
		keyPath, _ = DefaultKeyPath()
	} else if _, err := os.Stat(keyPath); err != nil {
		return nil, fmt.Errorf("private key %s: %w", keyPath, err)
	}

	return &SSHHandle{
		VMName:  name,
		User:    user,
		Addr:    addr,
		Port:    port,
		KeyPath: keyPath,
	}, nil
}

// ResolveAddress returns an IPv4 address for a running VM, polling the
// DHCP lease table until the address window closes.
func (s *Layer) ResolveAddress(ctx context.Context, name string) (string, error) {
	dom, err := s.runningDomain(name)
	if err != nil {
		return "", err
	}

	window := s.AddressWindow
	if window <= 0 {
		window = DefaultAddressWindow
	}
	poll := s.AddressPoll
	if poll <= 0 {
		poll = DefaultAddressPoll
	}

	waitCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if addr := s.leaseAddress(dom); addr != "" {
			return addr, nil
		}

		select {
		case <-waitCtx.Done():
			return "", fmt.Errorf("%w: no address for vm %s within %v", vmerr.ErrAddressUnresolved, name, window)
		case <-ticker.C:
		}
	}
}

// leaseAddress asks the network's DHCP lease table for the domain's
// IPv4 address. Errors are treated as "not yet": the caller retries.
func (s *Layer) leaseAddress(dom libvirt.Domain) string {
	ifaces, err := s.lv.DomainInterfaceAddresses(dom, uint32(libvirt.DomainInterfaceAddressesSrcLease), 0)
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}
		for _, a := range iface.Addrs {
			ip := net.ParseIP(a.Addr)
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return a.Addr
			}
		}
	}
	return ""
}

// ResolveUser picks the ssh login name: the explicit request wins, then
// the template's cloud image account, then root.
func ResolveUser(explicit, templateDefault string) string {
	if explicit != "" {
		return explicit
	}
	if templateDefault != "" {
		return templateDefault
	}
	return "root"
}

// DefaultKeyPath finds the caller's standard private key, preferring
// ed25519 over rsa.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to locate home directory: %w", err)
	}

	for _, name := range []string{"id_ed25519", "id_rsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no private key found under %s", filepath.Join(home, ".ssh"))
}
