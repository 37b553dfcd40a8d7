// Package metadata persists VM Records inside libvirt's custom domain
// metadata element. The record travels with the domain itself, so the
// hypervisor stays the one authoritative store and no external database
// is needed.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/vmfinder/vmfinder/internal/record"
)

const (
	// Namespace is the XML namespace identifying vmfinder metadata.
	Namespace = "https://vmfinder.dev/record/v1"

	// Key is the element key vmfinder metadata is filed under.
	Key = "vmfinder-record"
)

// Client is the slice of libvirt needed for metadata storage. Satisfied
// by *libvirt.Libvirt; mocked in tests.
type Client interface {
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// payload is the XML wrapper around the YAML-serialized record. YAML
// inside XML keeps the record human-readable in `virsh dumpxml` output.
type payload struct {
	XMLName    xml.Name `xml:"record"`
	Xmlns      string   `xml:"xmlns,attr"`
	RecordYAML string   `xml:",innerxml"`
}

// Encode serializes a record into the metadata element body.
func Encode(rec *record.Record) (string, error) {
	yamlData, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record to YAML: %w", err)
	}

	xmlData, err := xml.MarshalIndent(payload{
		Xmlns:      Namespace,
		RecordYAML: string(yamlData),
	}, "  ", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record metadata to XML: %w", err)
	}

	return string(xmlData), nil
}

// Decode parses a metadata element body back into a record.
func Decode(xmlStr string) (*record.Record, error) {
	var p payload
	if err := xml.Unmarshal([]byte(xmlStr), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record metadata XML: %w", err)
	}

	var rec record.Record
	if err := yaml.Unmarshal([]byte(p.RecordYAML), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record YAML: %w", err)
	}

	return &rec, nil
}

// Store reads and writes records on libvirt domains.
type Store struct {
	client Client
}

// NewStore creates a record store over the given libvirt client.
func NewStore(client Client) *Store {
	return &Store{client: client}
}

// Save writes the record to the domain's metadata, replacing any
// previous record.
func (s *Store) Save(dom libvirt.Domain, rec *record.Record) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}

	err = s.client.DomainSetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{body},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("failed to set domain metadata: %w", err)
	}

	return nil
}

// Load retrieves the record stored on a domain. Domains without
// vmfinder metadata return an error; callers treat those domains as
// unmanaged.
func (s *Store) Load(dom libvirt.Domain) (*record.Record, error) {
	xmlStr, err := s.client.DomainGetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain metadata: %w", err)
	}

	return Decode(xmlStr)
}

// Managed reports whether a domain carries a vmfinder record.
func (s *Store) Managed(dom libvirt.Domain) bool {
	_, err := s.client.DomainGetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	return err == nil
}
