package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-phone-storefront/internal/app"
	"github.com/imrishuroy/go-phone-storefront/internal/catalog"
	"github.com/imrishuroy/go-phone-storefront/internal/handlers"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
	"github.com/imrishuroy/go-phone-storefront/internal/validation"
)

// opener builds the wired app lazily so --help never touches AWS.
type opener func(ctx context.Context) (*app.App, error)

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "storectl",
		Short:        "Manage products, discount codes and orders",
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.AddCommand(productCmd(open), discountCmd(open), orderCmd(open))
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func productCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "product", Short: "Catalog commands"}

	var req validation.ProductRequest
	put := &cobra.Command{
		Use:   "put",
		Short: "Create, reprice or restock a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.New().Struct(req); err != nil {
				return fmt.Errorf("invalid product: %v", validation.FieldErrors(err))
			}
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.Catalog.Put(cmd.Context(), catalog.Product{
				ProductID:     req.ProductID,
				Name:          req.Name,
				Price:         req.Price,
				ImageURL:      req.ImageURL,
				StockQuantity: req.StockQuantity,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
	f := put.Flags()
	f.StringVar(&req.ProductID, "id", "", "Product id")
	f.StringVar(&req.Name, "name", "", "Display name")
	f.Int64Var(&req.Price, "price", 0, "Unit price in VND")
	f.StringVar(&req.ImageURL, "image", "", "Image URL")
	f.Int64Var(&req.StockQuantity, "stock", 0, "Units on hand")

	cmd.AddCommand(put)
	return cmd
}

type discountFlags struct {
	req     validation.UpsertDiscountRequest
	start   string
	end     string
	maxUses int64
	unlimit bool
}

func (f *discountFlags) request() (validation.UpsertDiscountRequest, error) {
	req := f.req
	var err error
	if f.start != "" {
		if req.StartDate, err = time.Parse(time.RFC3339, f.start); err != nil {
			return req, fmt.Errorf("--start: %w", err)
		}
	}
	if f.end != "" {
		if req.EndDate, err = time.Parse(time.RFC3339, f.end); err != nil {
			return req, fmt.Errorf("--end: %w", err)
		}
	}
	if !f.unlimit {
		n := f.maxUses
		req.MaxUses = &n
	}
	return req, nil
}

func discountCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "discount", Short: "Discount code commands"}

	var flags discountFlags
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or redefine a discount code; usage counters are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			if err := validation.New().Struct(req); err != nil {
				return fmt.Errorf("invalid discount: %v", validation.FieldErrors(err))
			}
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			c, err := a.Ledger.Put(cmd.Context(), handlers.DiscountFromRequest(req))
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	f := put.Flags()
	f.StringVar(&flags.req.Code, "code", "", "Code customers type in")
	f.StringVar(&flags.req.Type, "type", "", "percentage, fixed_amount or free_shipping")
	f.Float64Var(&flags.req.Value, "value", 0, "Percent or VND amount")
	f.Int64Var(&flags.req.MaxDiscount, "max-discount", 0, "Cap for percentage codes, 0 for none")
	f.Int64Var(&flags.req.MinOrderValue, "min-order", 0, "Minimum subtotal in VND")
	f.StringVar(&flags.start, "start", "", "Valid from (RFC3339), empty for open")
	f.StringVar(&flags.end, "end", "", "Valid until, exclusive (RFC3339), empty for open")
	f.Int64Var(&flags.maxUses, "max-uses", 0, "Total redemptions allowed")
	f.BoolVar(&flags.unlimit, "unlimited", false, "No total redemption limit")
	f.Int64Var(&flags.req.MaxUsesPerUser, "max-uses-per-user", 1, "Redemptions allowed per customer")
	f.StringVar(&flags.req.Status, "status", "active", "active, inactive or expired")
	put.MarkFlagsMutuallyExclusive("max-uses", "unlimited")

	get := &cobra.Command{
		Use:   "get <code>",
		Short: "Show a discount code with its usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			c, err := a.Ledger.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("discount %q not found", args[0])
			}
			return printJSON(cmd, c)
		},
	}

	cmd.AddCommand(put, get)
	return cmd
}

func orderCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Order moderation commands"}

	// run opens the app and prints the order returned by fn.
	run := func(fn func(ctx context.Context, m *orders.Machine, id string) (*orders.Order, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			o, err := fn(cmd.Context(), a.Orders, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, o)
		}
	}

	get := &cobra.Command{
		Use:   "get <order-id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, m *orders.Machine, id string) (*orders.Order, error) {
			return m.Get(ctx, id)
		}),
	}

	confirm := &cobra.Command{
		Use:   "confirm <order-id>",
		Short: "Confirm a pending order, reserving stock and redeeming its code",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, m *orders.Machine, id string) (*orders.Order, error) {
			return m.Confirm(ctx, id)
		}),
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, m *orders.Machine, id string) (*orders.Order, error) {
			return m.Reject(ctx, id, reason)
		}),
	}
	reject.Flags().StringVar(&reason, "reason", "", "Reason shown to the customer")

	var to string
	advance := &cobra.Command{
		Use:   "advance <order-id>",
		Short: "Move an order to shipping or delivered",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, m *orders.Machine, id string) (*orders.Order, error) {
			st, ok := orders.ParseStatus(to)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", to)
			}
			return m.Advance(ctx, id, st)
		}),
	}
	advance.Flags().StringVar(&to, "status", "", "shipping or delivered")
	_ = advance.MarkFlagRequired("status")

	cmd.AddCommand(get, confirm, reject, advance)
	return cmd
}
