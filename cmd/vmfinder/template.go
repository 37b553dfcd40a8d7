package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmfinder/vmfinder/internal/config"
	"github.com/vmfinder/vmfinder/internal/output"
	"github.com/vmfinder/vmfinder/internal/template"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage OS templates",
	Long: `Manage the template registry: named base images plus the OS
metadata needed to build VMs from them. Templates live as YAML files
in the templates directory.`,
}

var (
	templateOutputFormat string

	tplOS          string
	tplVersion     string
	tplArch        string
	tplVariant     string
	tplDescription string
	tplBaseImage   string
	tplDiskGB      int
	tplUser        string
	tplCloudInit   bool
)

func init() {
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateShowCmd)
	templateCmd.AddCommand(templateCreateCmd)
	templateCmd.AddCommand(templateDeleteCmd)

	templateListCmd.Flags().StringVarP(&templateOutputFormat, "output", "o", "table", "output format (table, yaml, json)")
	templateShowCmd.Flags().StringVarP(&templateOutputFormat, "output", "o", "yaml", "output format (yaml, json)")

	templateCreateCmd.Flags().StringVar(&tplOS, "os", "", "operating system name (required)")
	templateCreateCmd.Flags().StringVar(&tplVersion, "version", "", "operating system version")
	templateCreateCmd.Flags().StringVar(&tplArch, "arch", "x86_64", "guest architecture")
	templateCreateCmd.Flags().StringVar(&tplVariant, "os-variant", "", "libosinfo variant id")
	templateCreateCmd.Flags().StringVar(&tplDescription, "description", "", "free-form description")
	templateCreateCmd.Flags().StringVar(&tplBaseImage, "base-image", "", "path to the backing qcow2 image")
	templateCreateCmd.Flags().IntVar(&tplDiskGB, "disk-size", 20, "default working disk size in GB")
	templateCreateCmd.Flags().StringVar(&tplUser, "user", "", "default cloud image account")
	templateCreateCmd.Flags().BoolVar(&tplCloudInit, "cloud-init", false, "guests run cloud-init")
	_ = templateCreateCmd.MarkFlagRequired("os")
}

// openRegistry loads the registry without a libvirt connection;
// template commands never touch the hypervisor.
func openRegistry() (*template.Registry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return template.NewRegistry(cfg.TemplatesDir)
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{Format: output.Format(templateOutputFormat)})
		if err != nil {
			return err
		}
		out, err := formatter.FormatTemplateList(registry.List())
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template-name>",
	Short: "Show one template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}

		tpl, err := registry.Get(args[0])
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{Format: output.Format(templateOutputFormat)})
		if err != nil {
			return err
		}
		out, err := formatter.FormatTemplateList([]*template.Template{tpl})
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var templateCreateCmd = &cobra.Command{
	Use:   "create <template-name>",
	Short: "Create or replace a template",
	Long: `Register a template. The base image is the qcow2 file working
disks are cloned from; without one, VMs start with an empty disk.

Example:
  vmfinder template create rocky-9 --os rocky --version 9 \
    --base-image /var/lib/libvirt/images/rocky-9.qcow2 \
    --user rocky --cloud-init`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}

		tpl := &template.Template{
			Name:              args[0],
			OS:                tplOS,
			Version:           tplVersion,
			Arch:              tplArch,
			OSVariant:         tplVariant,
			Description:       tplDescription,
			BaseImage:         tplBaseImage,
			DefaultDiskGB:     tplDiskGB,
			DefaultUser:       tplUser,
			CloudImageSupport: tplCloudInit,
		}
		if err := registry.Save(tpl); err != nil {
			return err
		}

		fmt.Printf("✓ Template %s saved\n", tpl.Name)
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <template-name>",
	Short: "Delete a template",
	Long: `Remove a template from the registry. Existing VMs created from
it are unaffected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}

		if err := registry.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Template %s deleted\n", args[0])
		return nil
	},
}
