package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vmfinder/vmfinder/internal/loader"
	"github.com/vmfinder/vmfinder/internal/orchestrator"
	"github.com/vmfinder/vmfinder/internal/output"
	"github.com/vmfinder/vmfinder/internal/session"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage virtual machines",
	Long: `Create, inspect, and drive the lifecycle of template-based VMs.

Every VM is created from a named template and owns one qcow2 working
disk. Lifecycle state lives in the hypervisor; vmfinder never keeps a
separate database.`,
}

var (
	createTemplate string
	createVCPUs    int
	createMemory   int
	createDiskGB   int
	createNetwork  string
	createForce    bool
	createFile     string

	outputFormat string
	noHeaders    bool

	resizeDiskGB int

	sshUsername string
	sshKeyPath  string

	passwordUsername string
	passwordValue    string
)

func init() {
	vmCmd.AddCommand(vmCreateCmd)
	vmCmd.AddCommand(vmStartCmd)
	vmCmd.AddCommand(vmStopCmd)
	vmCmd.AddCommand(vmSuspendCmd)
	vmCmd.AddCommand(vmResumeCmd)
	vmCmd.AddCommand(vmDestroyCmd)
	vmCmd.AddCommand(vmResizeCmd)
	vmCmd.AddCommand(vmListCmd)
	vmCmd.AddCommand(vmInfoCmd)
	vmCmd.AddCommand(vmConsoleCmd)
	vmCmd.AddCommand(vmSSHCmd)
	vmCmd.AddCommand(vmSetPasswordCmd)

	vmCreateCmd.Flags().StringVarP(&createTemplate, "template", "t", "", "template to create the VM from")
	vmCreateCmd.Flags().IntVar(&createVCPUs, "cpu", 2, "number of vcpus")
	vmCreateCmd.Flags().IntVar(&createMemory, "memory", 2048, "memory in MiB")
	vmCreateCmd.Flags().IntVar(&createDiskGB, "disk-size", 0, "working disk size in GB (0 = template default)")
	vmCreateCmd.Flags().StringVar(&createNetwork, "network", "", "libvirt network (default from config)")
	vmCreateCmd.Flags().BoolVar(&createForce, "force", false, "destroy an existing VM of the same name first")
	vmCreateCmd.Flags().StringVarP(&createFile, "file", "f", "", "create from a YAML description instead of flags")

	vmListCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	vmListCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit table headers")
	vmInfoCmd.Flags().StringVarP(&outputFormat, "output", "o", "yaml", "output format (table, yaml, json)")

	vmResizeCmd.Flags().IntVar(&resizeDiskGB, "disk-size", 0, "new working disk size in GB")
	_ = vmResizeCmd.MarkFlagRequired("disk-size")

	vmSSHCmd.Flags().StringVarP(&sshUsername, "username", "u", "", "login name (default: template user)")
	vmSSHCmd.Flags().StringVarP(&sshKeyPath, "key", "i", "", "private key file")

	vmSetPasswordCmd.Flags().StringVarP(&passwordUsername, "username", "u", "", "account to reset (default: template user)")
	vmSetPasswordCmd.Flags().StringVar(&passwordValue, "password", "", "new password (prompted when omitted)")
}

var vmCreateCmd = &cobra.Command{
	Use:   "create [vm-name]",
	Short: "Create a VM from a template",
	Long: `Create a new VM: clone the template's base image into a working
disk, define the libvirt domain, and leave the VM stopped.

Either give a name plus --template, or -f with a YAML description.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var req orchestrator.CreateRequest
		switch {
		case createFile != "":
			loaded, err := loader.LoadFromFile(createFile)
			if err != nil {
				return err
			}
			req = *loaded
		case len(args) == 1 && createTemplate != "":
			req = orchestrator.CreateRequest{
				Name:      strings.ToLower(args[0]),
				Template:  createTemplate,
				VCPUs:     createVCPUs,
				MemoryMiB: createMemory,
				DiskGB:    createDiskGB,
				Network:   createNetwork,
			}
		default:
			return fmt.Errorf("either <vm-name> with --template or -f <file> is required")
		}
		req.Force = createForce

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if req.Network == "" {
			req.Network = a.cfg.Network
		}
		if req.VCPUs == 0 {
			req.VCPUs = 2
		}
		if req.MemoryMiB == 0 {
			req.MemoryMiB = 2048
		}

		rec, err := a.orch.Create(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("✓ VM %s created (template %s, %d vcpus, %d MiB, %d GB disk)\n",
			rec.Name, rec.Template, rec.VCPUs, rec.MemoryMiB, rec.DiskGB)
		return nil
	},
}

// lifecycleCommand builds the start/stop/suspend/resume/destroy
// commands, which differ only in the orchestrator call.
func lifecycleCommand(use, short, long, done string, op func(*app, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <vm-name>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := op(a, ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ VM %s %s\n", args[0], done)
			return nil
		},
	}
}

var vmStartCmd = lifecycleCommand("start", "Start a VM",
	"Boot a stopped VM, or resume a suspended one.", "started",
	func(a *app, ctx context.Context, name string) error { return a.orch.Start(ctx, name) })

var vmStopCmd = lifecycleCommand("stop", "Stop a VM",
	`Power off a VM. Running guests get a graceful ACPI shutdown first;
if the guest does not power off within the shutdown timeout it is
forced off.`, "stopped",
	func(a *app, ctx context.Context, name string) error { return a.orch.Stop(ctx, name) })

var vmSuspendCmd = lifecycleCommand("suspend", "Suspend a VM",
	"Pause a running VM, keeping its guest memory.", "suspended",
	func(a *app, ctx context.Context, name string) error { return a.orch.Suspend(ctx, name) })

var vmResumeCmd = lifecycleCommand("resume", "Resume a suspended VM",
	"Unpause a suspended VM.", "resumed",
	func(a *app, ctx context.Context, name string) error { return a.orch.Resume(ctx, name) })

var vmDestroyCmd = lifecycleCommand("destroy", "Destroy a VM",
	`Remove a VM entirely: force-stop it if active, undefine the domain,
and delete its working disk. Destroying an absent VM is a no-op.`, "destroyed",
	func(a *app, ctx context.Context, name string) error { return a.orch.Destroy(ctx, name) })

var vmResizeCmd = &cobra.Command{
	Use:   "resize <vm-name>",
	Short: "Grow a stopped VM's working disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.orch.ResizeDisk(ctx, args[0], resizeDiskGB); err != nil {
			return err
		}
		fmt.Printf("✓ VM %s disk resized to %d GB\n", args[0], resizeDiskGB)
		return nil
	},
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed VMs",
	Long:  `List all VMs vmfinder manages, with run states reconciled from the hypervisor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		out, err := formatter.FormatRecordList(a.orch.List())
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var vmInfoCmd = &cobra.Command{
	Use:   "info <vm-name>",
	Short: "Show one VM's record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.orch.Get(args[0])
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{Format: output.Format(outputFormat)})
		if err != nil {
			return err
		}
		out, err := formatter.FormatRecord(rec)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var vmConsoleCmd = &cobra.Command{
	Use:   "console <vm-name>",
	Short: "Attach to a VM's serial console",
	Long: `Open an interactive serial console session on a running VM.
Exit with ctrl-].`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}

		console, err := a.sessions.Console(args[0])
		a.close()
		if err != nil {
			return err
		}

		fmt.Printf("Connected to %s (escape: ctrl-])\n", args[0])
		return runInteractive(console.Argv())
	},
}

var vmSSHCmd = &cobra.Command{
	Use:   "ssh <vm-name>",
	Short: "Open an ssh session to a VM",
	Long: `Resolve the VM's address from the DHCP lease table and open an
interactive ssh session. The login name falls back to the template's
cloud image account.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		user := sshUsername
		if user == "" {
			if rec, err := a.orch.Get(args[0]); err == nil {
				if tpl, err := a.registry.Get(rec.Template); err == nil {
					user = session.ResolveUser("", tpl.DefaultUser)
				}
			}
		}

		handle, err := a.sessions.OpenSSH(ctx, args[0], session.SSHOptions{
			User:    user,
			KeyPath: sshKeyPath,
		})
		a.close()
		if err != nil {
			return err
		}

		fmt.Printf("Connecting to %s@%s...\n", handle.User, handle.Addr)
		return runInteractive(handle.Argv())
	},
}

var vmSetPasswordCmd = &cobra.Command{
	Use:   "set-password <vm-name>",
	Short: "Reset an account password via cloud-init",
	Long: `Stage a password reset for a stopped VM. A NoCloud seed ISO is
attached to the domain; cloud-init applies the new password on the next
boot. The VM must be stopped and its template must support cloud
images.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		password := passwordValue
		if password == "" {
			var err error
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.orch.SetPassword(ctx, args[0], passwordUsername, password); err != nil {
			return err
		}
		fmt.Printf("✓ Password staged for %s; it applies on next boot\n", args[0])
		return nil
	},
}

// promptPassword reads a password twice without echo.
func promptPassword() (string, error) {
	fmt.Print("New password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Retype new password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(first), nil
}

// runInteractive hands the terminal to an external command (virsh
// console, ssh).
func runInteractive(argv []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", argv[0], err)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
