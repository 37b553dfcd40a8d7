// Package cloudinit generates NoCloud seed ISOs. The guest credential
// injector attaches these to a stopped VM so cloud-init applies the new
// credentials on the next boot, without touching the guest filesystem
// from the host.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/kdomanski/iso9660"
	"gopkg.in/yaml.v3"
)

// userData is the cloud-config document for a password reset.
type userData struct {
	SSHPasswordAuth bool      `yaml:"ssh_pwauth"`
	Chpasswd        *chpasswd `yaml:"chpasswd"`
}

type chpasswd struct {
	Expire bool            `yaml:"expire"`
	Users  []chpasswdEntry `yaml:"users"`
}

type chpasswdEntry struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Type     string `yaml:"type"`
}

// metaData is the NoCloud instance metadata. A fresh instance-id forces
// cloud-init to re-run the per-instance modules, which is what applies
// the password change on an already-initialized guest.
type metaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// PasswordUserData renders the cloud-config that resets username's
// password and enables password ssh auth so the new credential is
// actually usable.
func PasswordUserData(username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username must not be empty")
	}
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}

	doc := userData{
		SSHPasswordAuth: true,
		Chpasswd: &chpasswd{
			Expire: false,
			Users: []chpasswdEntry{
				{Name: username, Password: password, Type: "text"},
			},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data: %w", err)
	}

	return "#cloud-config\n" + string(out), nil
}

// MetaData renders the NoCloud meta-data for vmName with a unique
// instance-id.
func MetaData(vmName string) (string, error) {
	doc := metaData{
		InstanceID:    fmt.Sprintf("vmfinder-%s-%s", vmName, uuid.NewString()),
		LocalHostname: vmName,
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data: %w", err)
	}

	return string(out), nil
}

// BuildSeedISO assembles user-data and meta-data into a NoCloud ISO
// image, returned as bytes ready to write next to the working disk.
func BuildSeedISO(userData, metaData string) ([]byte, error) {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader([]byte(userData)), "user-data"); err != nil {
		return nil, fmt.Errorf("failed to add user-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(metaData)), "meta-data"); err != nil {
		return nil, fmt.Errorf("failed to add meta-data: %w", err)
	}

	var buf bytes.Buffer
	// "CIDATA" is the volume label the NoCloud datasource looks for.
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}

// PasswordSeedISO is the one-call form used by the guest injector.
func PasswordSeedISO(vmName, username, password string) ([]byte, error) {
	ud, err := PasswordUserData(username, password)
	if err != nil {
		return nil, err
	}
	md, err := MetaData(vmName)
	if err != nil {
		return nil, err
	}
	return BuildSeedISO(ud, md)
}
