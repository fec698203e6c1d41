package main

import (
	"fmt"
	"strconv"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func productCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the catalogue",
	}
	cmd.AddCommand(productListCmd(a), productCreateCmd(a), productPriceCmd(a), productRestockCmd(a), productDeactivateCmd(a))
	return cmd
}

func productListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repo(cmd.Context())
			if err != nil {
				return err
			}
			ps, err := repo.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(ps)
		},
	}
}

func productCreateCmd(a *app) *cobra.Command {
	var (
		name, description, price string
		stock                    int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			svc, err := a.admin(cmd.Context(), false)
			if err != nil {
				return err
			}
			created, err := svc.CreateProduct(cmd.Context(), orders.Product{
				Name: name, Description: description, Price: p, Stock: stock,
			})
			if err != nil {
				return err
			}
			return a.print(created)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "product name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "product description")
	cmd.Flags().StringVarP(&price, "price", "p", "", "price in USD, e.g. 19.99")
	cmd.Flags().IntVarP(&stock, "stock", "s", 0, "initial stock")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func productPriceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "price [product-id] [usd]",
		Short: "Change the price of future orders",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("price: %w", err)
			}
			svc, err := a.admin(cmd.Context(), false)
			if err != nil {
				return err
			}
			p, err := svc.UpdatePrice(cmd.Context(), args[0], price)
			if err != nil {
				return err
			}
			return a.print(p)
		},
	}
}

func productRestockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restock [product-id] [qty]",
		Short: "Add units to a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("qty: %w", err)
			}
			svc, err := a.admin(cmd.Context(), false)
			if err != nil {
				return err
			}
			p, err := svc.Restock(cmd.Context(), args[0], qty)
			if err != nil {
				return err
			}
			return a.print(p)
		},
	}
}

func productDeactivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate [product-id]",
		Short: "Hide a product from the catalogue; past orders keep it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.admin(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := svc.DeactivateProduct(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deactivated %s\n", args[0])
			return nil
		},
	}
}
