package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/appstate"
	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/settlement"
)

var errUsage = errors.New("invalid arguments, run with --help for usage")

type app struct {
	api          *client.Client
	store        *appstate.Store
	orchestrator *settlement.Orchestrator
	logger       *zap.Logger
	out          io.Writer
}

// authed переводит 401 в сообщение о необходимости войти и сбрасывает сессию.
func (a *app) authed(err error) error {
	if a.store.HandleAPIError(err) {
		a.api.SetToken("")
		return errors.New("not signed in, run: storefront-cli login <email> <password>")
	}
	return err
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.api.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.store.SignIn(appstate.Session{Token: res.Token, User: res.User}); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Signed in as %s (%s)\n", res.User.Email, res.User.Role)
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.api.SetToken("")
			return a.store.SignOut()
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.api.Me(cmd.Context())
			if err != nil {
				return a.authed(err)
			}
			fmt.Fprintf(a.out, "%s %s (%s), verified: %t\n", u.ID, u.Email, u.Role, u.IsVerified)
			return nil
		},
	}
}

func (a *app) productsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products [category]",
		Short: "List products",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := ""
			if len(args) > 0 {
				category = args[0]
			}

			products, err := a.api.Products(cmd.Context(), category)
			if err != nil {
				return err
			}

			tw := a.table()
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE")
			for _, p := range products {
				fmt.Fprintf(tw, "%d\t%s\t%s\t₹%s\n", p.ID, p.Name, p.Category, p.Price)
			}
			return tw.Flush()
		},
	}
}

func parseProductID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q: %w", s, errUsage)
	}
	return id, nil
}

func parseQuantity(s string) (int, error) {
	qty, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, errUsage)
	}
	return qty, nil
}

func (a *app) cartCmd() *cobra.Command {
	cart := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printCart()
		},
	}

	add := &cobra.Command{
		Use:   "add <productId> [qty]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) > 1 {
				if qty, err = parseQuantity(args[1]); err != nil {
					return err
				}
			}

			p, err := a.api.Product(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := a.store.AddToCart(*p, qty); err != nil {
				return err
			}
			return a.printCart()
		},
	}

	set := &cobra.Command{
		Use:   "set <productId> <qty>",
		Short: "Change quantity, 0 removes the product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			if err := a.store.UpdateQuantity(id, qty); err != nil {
				return err
			}
			return a.printCart()
		},
	}

	remove := &cobra.Command{
		Use:   "remove <productId>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			if err := a.store.RemoveFromCart(id); err != nil {
				return err
			}
			return a.printCart()
		},
	}

	cart.AddCommand(add, set, remove)
	return cart
}

func (a *app) printCart() error {
	items := a.store.Cart()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Cart is empty")
		return nil
	}

	tw := a.table()
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t₹%s\n", it.ProductID, it.Name, it.Quantity, it.Price)
	}
	fmt.Fprintf(tw, "\tTotal\t%d\t₹%s\n", a.store.Count(), a.store.Subtotal())
	return tw.Flush()
}

func (a *app) checkoutCmd() *cobra.Command {
	var d client.Delivery

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart",
		Long: `Place an order for the cart.

Without --address-id and --address the order ships to the default address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := a.store.OrderLines()
			if len(lines) == 0 {
				return errors.New("cart is empty")
			}

			order, err := a.api.PlaceOrder(cmd.Context(), lines, d)
			if err != nil {
				return a.authed(err)
			}
			if err := a.store.ClearCart(); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Order %s placed, subtotal ₹%s\nShip to: %s\n", order.ID, order.Subtotal, order.ShippingAddress)
			return nil
		},
	}
	cmd.Flags().StringVar(&d.AddressID, "address-id", "", "saved address id")
	cmd.Flags().StringVar(&d.ShippingAddress, "address", "", "shipping address as text")
	cmd.MarkFlagsMutuallyExclusive("address-id", "address")
	return cmd
}

func (a *app) ordersCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := a.api.Orders(cmd.Context(), status)
			if err != nil {
				return a.authed(err)
			}

			tw := a.table()
			fmt.Fprintln(tw, "ID\tSTATUS\tITEMS\tSUBTOTAL\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(tw, "%s\t%s\t%d\t₹%s\t%s\n", o.ID, o.Status, len(o.Items), o.Subtotal, o.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, processing, shipped, delivered, cancelled or all")
	return cmd
}

func (a *app) addressCmd() *cobra.Command {
	address := &cobra.Command{
		Use:   "address",
		Short: "List saved delivery addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addresses, err := a.api.Addresses(cmd.Context())
			if err != nil {
				return a.authed(err)
			}
			if len(addresses) == 0 {
				fmt.Fprintln(a.out, "No saved addresses")
				return nil
			}

			tw := a.table()
			fmt.Fprintln(tw, "ID\tDEFAULT\tADDRESS")
			for _, ad := range addresses {
				mark := ""
				if ad.IsDefault {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ad.ID, mark, ad)
			}
			return tw.Flush()
		},
	}

	var in model.Address
	add := &cobra.Command{
		Use:   "add",
		Short: "Save a delivery address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ad, err := a.api.AddAddress(cmd.Context(), in)
			if err != nil {
				return a.authed(err)
			}
			fmt.Fprintf(a.out, "Address %s saved: %s\n", ad.ID, ad)
			return nil
		},
	}
	add.Flags().StringVar(&in.FullName, "name", "", "recipient full name")
	add.Flags().StringVar(&in.Street, "street", "", "street and house")
	add.Flags().StringVar(&in.City, "city", "", "city")
	add.Flags().StringVar(&in.State, "region", "", "state or region")
	add.Flags().StringVar(&in.PostalCode, "postal-code", "", "postal code")
	add.Flags().StringVar(&in.Country, "country", "India", "country")
	add.Flags().StringVar(&in.Phone, "phone", "", "contact phone")
	add.Flags().BoolVar(&in.IsDefault, "default", false, "use as the default address")
	for _, name := range []string{"name", "street", "city", "postal-code", "phone"} {
		_ = add.MarkFlagRequired(name)
	}

	setDefault := &cobra.Command{
		Use:   "default <addressId>",
		Short: "Make a saved address the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ad, err := a.api.SetDefaultAddress(cmd.Context(), args[0])
			if err != nil {
				return a.authed(err)
			}
			fmt.Fprintf(a.out, "Default address: %s\n", ad)
			return nil
		},
	}

	address.AddCommand(add, setDefault)
	return address
}

func (a *app) walletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show wallet balance and transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.api.Wallet(ctx)
			if err != nil {
				return a.authed(err)
			}
			history, err := a.api.Transactions(ctx)
			if err != nil {
				return a.authed(err)
			}

			fmt.Fprintf(a.out, "Balance ₹%s (%s), loaded ₹%s, used ₹%s\n", w.Balance, w.Status, w.TotalLoaded, w.TotalUsed)

			tw := a.table()
			fmt.Fprintln(tw, "TYPE\tSTATUS\tAMOUNT\tDESCRIPTION\tCREATED")
			for _, tx := range history.Transactions {
				fmt.Fprintf(tw, "%s\t%s\t₹%s\t%s\t%s\n", tx.Type, tx.Status, tx.Amount, tx.Description, tx.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <rupees>",
		Short: "Load the wallet through the payment gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := model.ParseMoney(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], errUsage)
			}

			res, err := a.orchestrator.LoadWallet(cmd.Context(), amount)
			if err != nil {
				return a.authed(err)
			}

			fmt.Fprintf(a.out, "Wallet loaded, balance ₹%s\n", res.Wallet.Balance)
			return nil
		},
	}
}

func (a *app) servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.api.Services(cmd.Context())
			if err != nil {
				return err
			}

			tw := a.table()
			fmt.Fprintln(tw, "ID\tSTAGE\tNAME\tRULES")
			for _, s := range services {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.Stage, s.Name, len(s.PricingRules))
			}
			return tw.Flush()
		},
	}
}

// filterFlags хранит фильтры расчёта цены. В запрос попадают только явно заданные флаги.
type filterFlags struct {
	category  string
	geography string
	volume    float64
	season    string
	buyer     string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "product category")
	cmd.Flags().StringVar(&f.geography, "geography", "", "target geography")
	cmd.Flags().Float64Var(&f.volume, "volume", 0, "deal value in rupees")
	cmd.Flags().StringVar(&f.season, "season", "", "seasonality")
	cmd.Flags().StringVar(&f.buyer, "buyer", "", "buyer type")
}

func (f *filterFlags) filters(cmd *cobra.Command) pricing.Filters {
	var res pricing.Filters
	changed := cmd.Flags().Changed
	if changed("category") {
		res.Category = &f.category
	}
	if changed("geography") {
		res.Geography = &f.geography
	}
	if changed("volume") {
		res.Volume = &f.volume
	}
	if changed("season") {
		res.Seasonality = &f.season
	}
	if changed("buyer") {
		res.BuyerType = &f.buyer
	}
	return res
}

func (a *app) quoteCmd() *cobra.Command {
	var f filterFlags

	cmd := &cobra.Command{
		Use:   "quote <serviceId>",
		Short: "Calculate a service price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.api.CalculatePrice(cmd.Context(), args[0], f.filters(cmd))
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s: ₹%s %s\n", q.ServiceName, q.CalculatedPrice, q.Currency)
			if q.AppliedRule != nil {
				fmt.Fprintf(a.out, "Applied rule: %s (%s)\n", q.AppliedRule.Name, q.AppliedRule.Type)
			}
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) purchaseCmd() *cobra.Command {
	var f filterFlags

	cmd := &cobra.Command{
		Use:   "purchase <serviceId>",
		Short: "Buy a service, wallet first, gateway on shortfall",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.orchestrator.Purchase(cmd.Context(), args[0], f.filters(cmd))
			if err != nil {
				if res != nil && res.UserService != nil {
					fmt.Fprintf(a.out, "Service %s is started but unpaid. Contact support if you were charged.\n", res.UserService.ID)
				}
				return a.authed(err)
			}

			fmt.Fprintf(a.out, "Service %s is active", res.UserService.ID)
			if res.Wallet != nil {
				fmt.Fprintf(a.out, ", wallet balance ₹%s", res.Wallet.Balance)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) myServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "my-services",
		Short: "List your services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.api.MyServices(cmd.Context())
			if err != nil {
				return a.authed(err)
			}

			tw := a.table()
			fmt.Fprintln(tw, "ID\tSERVICE\tSTAGE\tSTATUS\tPAID\tPROGRESS")
			for _, us := range services {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t₹%s\t%d%%\n", us.ID, us.ServiceID, us.Stage, us.Status, us.AmountPaid, us.Progress)
			}
			return tw.Flush()
		},
	}
}

func (a *app) marketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "market [type]",
		Short: "List market data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind model.MarketDataType
			if len(args) > 0 {
				kind = model.MarketDataType(strings.ToUpper(args[0]))
			}

			data, err := a.api.MarketData(cmd.Context(), kind)
			if err != nil {
				return err
			}

			for _, d := range data {
				fmt.Fprintf(a.out, "%s [%s] %s\n", d.Type, d.Source, describePayload(d.Data))
			}
			return nil
		},
	}
}

func (a *app) partnersCmd() *cobra.Command {
	partners := &cobra.Command{
		Use:   "partners",
		Short: "Find export partners",
	}

	var q client.PartnerSearch
	var volume float64
	search := &cobra.Command{
		Use:   "search",
		Short: "Match partners by product and destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("volume") {
				q.Volume = &volume
			}

			res, err := a.api.SearchPartners(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.printMatches(res)
		},
	}
	search.Flags().StringVar(&q.ProductType, "product", "", "product type, matched against partner specialties")
	search.Flags().StringVar(&q.Destination, "destination", "", "destination country")
	search.Flags().Float64Var(&volume, "volume", 0, "expected volume")
	search.Flags().StringVar(&q.PartnerType, "type", "", "partner type, e.g. CHA or SHIPPING")

	partners.AddCommand(search)
	return partners
}

func (a *app) printMatches(res *client.PartnerMatches) error {
	if len(res.Internal) == 0 && len(res.External) == 0 {
		fmt.Fprintln(a.out, "No partners found")
		return nil
	}

	tw := a.table()
	fmt.Fprintln(tw, "ID\tCOMPANY\tTYPE\tCOUNTRY\tRATING")
	for _, p := range res.Internal {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\n", p.ID, p.CompanyName, p.Type, p.Country, p.Rating)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, d := range res.External {
		fmt.Fprintf(a.out, "external %s [%s] %s\n", d.Type, d.Source, describePayload(d.Data))
	}
	return nil
}

func describePayload(p model.MarketPayload) string {
	switch v := p.(type) {
	case model.PriceTrend:
		if len(v.Points) == 0 {
			return "no price points"
		}
		last := v.Points[len(v.Points)-1]
		return fmt.Sprintf("%d points, last %s: %.2f", len(v.Points), last.Date, last.Price)
	case model.DemandIndex:
		return fmt.Sprintf("index %.1f, trend %s", v.Index, v.Trend)
	case model.TradeFlow:
		return fmt.Sprintf("%s -> %s, volume %.0f", v.Origin, v.Destination, v.Volume)
	case model.UnknownPayload:
		return string(v.Raw)
	default:
		return "-"
	}
}
