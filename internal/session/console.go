package session

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// Console describes a serial console attachment point for a running VM.
type Console struct {
	VMName string

	// PTY is the host pty device backing the guest's serial console.
	// May be empty when libvirt has not exposed it yet.
	PTY string
}

// Argv returns the command line for an interactive console session.
// The console is a bidirectional raw terminal; delegating to virsh
// keeps escape handling (ctrl-]) consistent with what operators expect.
func (c *Console) Argv() []string {
	return []string{"virsh", "console", c.VMName}
}

// Console prepares serial console access to a running VM.
func (s *Layer) Console(name string) (*Console, error) {
	dom, err := s.runningDomain(name)
	if err != nil {
		return nil, err
	}

	xmlDesc, err := s.lv.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain XML for %s: %w", name, err)
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML for %s: %w", name, err)
	}

	return &Console{VMName: name, PTY: consolePTY(&def)}, nil
}

// consolePTY digs the pty device path out of the live domain XML,
// preferring the console element over the raw serial port.
func consolePTY(def *libvirtxml.Domain) string {
	if def.Devices == nil {
		return ""
	}
	for _, c := range def.Devices.Consoles {
		if c.Source != nil && c.Source.Pty != nil && c.Source.Pty.Path != "" {
			return c.Source.Pty.Path
		}
	}
	for _, s := range def.Devices.Serials {
		if s.Source != nil && s.Source.Pty != nil && s.Source.Pty.Path != "" {
			return s.Source.Pty.Path
		}
	}
	return ""
}
