package main

import (
	"github.com/ariefcatur/go-crypto-shop/internal/checkout"
	"github.com/ariefcatur/go-crypto-shop/internal/gateway"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/spf13/cobra"
)

func orderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and change orders",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show [order-id]",
			Short: "Show an order with its current invoice",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				repo, err := a.repo(cmd.Context())
				if err != nil {
					return err
				}
				o, err := repo.GetOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				inv, err := (&checkout.Service{Store: repo}).CurrentInvoice(cmd.Context(), o.ID)
				if err != nil {
					return err
				}
				return a.print(checkout.Placement{Order: o, Invoice: inv})
			},
		},
		&cobra.Command{
			Use:   "cancel [order-id]",
			Short: "Cancel a pending order and release its stock",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.admin(cmd.Context(), true)
				if err != nil {
					return err
				}
				o, err := svc.CancelOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(o)
			},
		},
		&cobra.Command{
			Use:   "refund [order-id]",
			Short: "Mark a paid order refunded",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.admin(cmd.Context(), false)
				if err != nil {
					return err
				}
				o, err := svc.RefundOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(o)
			},
		},
	)
	return cmd
}

func invoiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Payment invoices",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resend [order-id]",
		Short: "Provision a fresh invoice for a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repo(cmd.Context())
			if err != nil {
				return err
			}
			svc := &checkout.Service{Store: repo, Gateway: gateway.NewClient(a.cfg.Gateway, nil)}
			pl, err := svc.ResendInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.cache(cmd.Context()).Invalidate(cmd.Context(), redisx.EntityOrder, args[0], redisx.EventUpdate)
			return a.print(pl)
		},
	})
	return cmd
}
