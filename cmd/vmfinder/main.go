package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmfinder/vmfinder/internal/config"
	"github.com/vmfinder/vmfinder/internal/disk"
	"github.com/vmfinder/vmfinder/internal/guest"
	"github.com/vmfinder/vmfinder/internal/hypervisor"
	"github.com/vmfinder/vmfinder/internal/orchestrator"
	"github.com/vmfinder/vmfinder/internal/session"
	"github.com/vmfinder/vmfinder/internal/template"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto distinct exit codes so scripts
// can branch without parsing messages.
func exitCode(err error) int {
	switch {
	case errors.Is(err, vmerr.ErrVMNotFound), errors.Is(err, vmerr.ErrTemplateNotFound):
		return 2
	case errors.Is(err, vmerr.ErrNameConflict):
		return 3
	case errors.Is(err, vmerr.ErrInvalidState), errors.Is(err, vmerr.ErrVMRunning), errors.Is(err, vmerr.ErrVMNotRunning):
		return 4
	case errors.Is(err, vmerr.ErrInvalidSpec):
		return 5
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmfinder",
	Short: "vmfinder - template-based libvirt VM lifecycle tool",
	Long: `vmfinder creates and manages libvirt VMs from named OS templates.

It provisions qcow2 working disks from template base images, drives the
VM lifecycle (create, start, stop, suspend, resume, destroy), and opens
console and ssh sessions into running guests.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath+")")

	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(testConnCmd)
}

// app bundles the wired-up components a command needs. Close when done.
type app struct {
	cfg      *config.Settings
	client   *hypervisor.Client
	registry *template.Registry
	orch     *orchestrator.Orchestrator
	sessions *session.Layer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	client, err := hypervisor.ConnectWithContext(ctx, cfg.LibvirtSocket, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	registry, err := template.NewRegistry(cfg.TemplatesDir)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	prov, err := disk.NewProvisioner(cfg.StorageBase)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Hypervisor:      client.Libvirt(),
		Provisioner:     prov,
		Templates:       registry,
		Injector:        guest.New(client.Libvirt(), registry, cfg.StorageBase),
		StorageBase:     cfg.StorageBase,
		ShutdownTimeout: cfg.ShutdownTimeout(),
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		client:   client,
		registry: registry,
		orch:     orch,
		sessions: session.New(client.Libvirt()),
	}, nil
}

func (a *app) close() {
	if err := a.client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize directories and stock templates",
	Long: `Create the storage and template directories and write the stock
OS templates (ubuntu and debian cloud images). Existing templates are
overwritten; VM disks are never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if _, err := disk.NewProvisioner(cfg.StorageBase); err != nil {
			return err
		}
		fmt.Printf("✓ Storage directory %s ready\n", cfg.StorageBase)

		if err := template.WriteDefaults(cfg.TemplatesDir); err != nil {
			return err
		}
		fmt.Printf("✓ Stock templates written to %s\n", cfg.TemplatesDir)
		return nil
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		fmt.Println("Testing libvirt connection...")
		client, err := hypervisor.Connect(cfg.LibvirtSocket, 0)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		lvVersion, err := client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}

		// libvirt packs the version as major*1000000 + minor*1000 + patch.
		major := lvVersion / 1000000
		minor := (lvVersion % 1000000) / 1000
		patch := lvVersion % 1000
		fmt.Printf("✓ Libvirt version: %d.%d.%d\n", major, minor, patch)

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
