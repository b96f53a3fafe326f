package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/alloc"
	"github.com/proxforge/proxforge/pkg/inventory"
)

func newInventoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect the inventory and its allocation state",
	}

	cmd.AddCommand(newInventoryShowCommand())
	cmd.AddCommand(newInventoryNextCommand())
	cmd.AddCommand(newInventoryNextIPCommand())

	return cmd
}

func newInventoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the inventory contents",
		Example: `  # Human-readable summary
  proxforge inventory show

  # Full document as JSON
  proxforge inventory show --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inventory.NewStore(inventoryPath).Load()
			if err != nil {
				return err
			}

			return render(inv, func() {
				fmt.Printf("Proxmox: %s (node %s)\n", inv.Proxmox.Endpoint, inv.Proxmox.Node)
				fmt.Printf("Networks (%d):\n", len(inv.Networks))
				for _, n := range inv.Networks {
					fmt.Printf("  %-12s %-18s static %s-%s\n",
						n.Name, n.Subnet, n.StaticRange.Start, n.StaticRange.End)
				}
				fmt.Printf("Hosts (%d):\n", len(inv.Hosts))
				for _, h := range inv.Hosts {
					fmt.Printf("  %-12s vmid %-4d %s\n", h.Name, h.VMID, h.Type)
				}
				fmt.Printf("Templates (%d):\n", len(inv.Templates))
				for _, t := range inv.Templates {
					fmt.Printf("  %-12s vmid %-4d version %s\n", t.Name, t.VMID, t.Version)
				}
				fmt.Printf("Reservations: %d vmids, %d ips\n",
					len(inv.Reserved.VMIDs), len(inv.Reserved.IPs))
				for _, r := range inv.Reserved.VMIDs {
					fmt.Printf("  %-24s -> %d\n", r.RefID, r.VMID)
				}
				for _, r := range inv.Reserved.IPs {
					fmt.Printf("  %-24s -> %s\n", r.RefID, r.IP)
				}
			})
		},
	}
}

func newInventoryNextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next <type>",
		Short: "Preview the next VM ID for a resource type",
		Long: `Print the VM ID the next allocation of the given resource type
would yield. Nothing is reserved; run a manifest to bind an ID.

Types and their fixed ranges: baremetal (0-99), vm (100-199),
lxc (200-299), template (300-399).`,
		Example: `  proxforge inventory next vm
  proxforge inventory next template`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inventory.NewStore(inventoryPath).Load()
			if err != nil {
				return err
			}

			vmid, err := alloc.NextVMID(alloc.ResourceType(args[0]), inv)
			if err != nil {
				return err
			}
			fmt.Println(vmid)
			return nil
		},
	}
}

func newInventoryNextIPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next-ip <network>",
		Short: "Preview the next static IP for a network",
		Long: `Print the address the next allocation on the given network would
yield, in CIDR notation. Nothing is reserved.`,
		Example: `  proxforge inventory next-ip lan`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inventory.NewStore(inventoryPath).Load()
			if err != nil {
				return err
			}

			prefix, err := alloc.NextIP(args[0], inv)
			if err != nil {
				return err
			}
			fmt.Println(prefix)
			return nil
		},
	}
}
