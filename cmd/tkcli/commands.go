package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/money"
)

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func argID(args []string, i int, what string) (int64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing %s", what)
	}
	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s %q", what, args[i])
	}
	return id, nil
}

func argInt(args []string, i int, what string, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[i])
	}
	return n, nil
}

func (a *cli) requireLogin() error {
	if a.session.User == nil || a.session.Token == "" {
		return errors.New("not logged in, run: tkcli login -email ... -password ...")
	}
	return nil
}

func (a *cli) printProducts(products []models.Product) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, p := range products {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Category, money.Format(p.Price), p.Stock)
	}
	_ = tw.Flush()
}

func (a *cli) printOrders(orders []models.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(a.out, "no orders")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tID\tCUSTOMER\tITEMS\tTOTAL\tSTATUS\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n", o.OrderNumber, o.ID, o.User.Email, len(o.Items),
			money.Format(o.Total), o.Status, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func cmdProducts(ctx context.Context, a *cli, args []string) error {
	fs := newFlags("products", a.out)
	category := fs.String("category", "", "filter by category")
	search := fs.String("search", "", "match name or description")
	minPrice := fs.String("min", "", "minimum price")
	maxPrice := fs.String("max", "", "maximum price")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	for key, v := range map[string]string{"category": *category, "search": *search, "minPrice": *minPrice, "maxPrice": *maxPrice} {
		if v != "" {
			q.Set(key, v)
		}
	}
	products, err := a.api.Products(ctx, q)
	if err != nil {
		return err
	}
	a.printProducts(products)
	return nil
}

func cmdShow(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "product id")
	if err != nil {
		return err
	}
	p, err := a.api.Product(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (#%d)\n", p.Name, p.ID)
	fmt.Fprintf(a.out, "  price:    %s\n", money.Format(p.Price))
	fmt.Fprintf(a.out, "  category: %s\n", p.Category)
	fmt.Fprintf(a.out, "  stock:    %d\n", p.Stock)
	if p.Specs != "" {
		fmt.Fprintf(a.out, "  specs:    %s\n", p.Specs)
	}
	if p.Description != "" {
		fmt.Fprintf(a.out, "\n%s\n", p.Description)
	}
	return nil
}

func cmdRegister(ctx context.Context, a *cli, args []string) error {
	fs := newFlags("register", a.out)
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	auth, err := a.api.Register(ctx, models.RegisterInput{Name: *name, Email: *email, Password: *password, ConfirmPassword: *password})
	if err != nil {
		return err
	}
	if err := a.state.saveSession(&session{Token: auth.Token, User: auth.User}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "welcome, %s\n", auth.User.Name)
	return nil
}

func cmdLogin(ctx context.Context, a *cli, args []string) error {
	fs := newFlags("login", a.out)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	auth, err := a.api.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	if err := a.state.saveSession(&session{Token: auth.Token, User: auth.User}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s (%s)\n", auth.User.Email, auth.User.Role)
	return nil
}

func cmdLogout(ctx context.Context, a *cli, args []string) error {
	if a.session.Token != "" {
		// the local session goes away even if the server already forgot it
		if err := a.api.Logout(ctx); err != nil {
			fmt.Fprintf(a.out, "warning: %v\n", err)
		}
	}
	if err := a.state.clearSession(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *cli, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	u, err := a.api.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s> id=%d role=%s\n", u.Name, u.Email, u.ID, u.Role)
	return nil
}

func cmdCart(ctx context.Context, a *cli, args []string) error {
	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	if c.Len() == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, item := range c.Items() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", item.ProductID, item.Name, item.Quantity,
			money.Format(item.Price), money.Format(item.Subtotal()))
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", c.Count(), money.Format(c.Total()))
	return tw.Flush()
}

func cmdAdd(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "product id")
	if err != nil {
		return err
	}
	qty, err := argInt(args, 1, "quantity", 1)
	if err != nil {
		return err
	}
	p, err := a.api.Product(ctx, id)
	if err != nil {
		return err
	}
	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	if err := c.Add(models.SnapshotOf(*p), qty); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added %d x %s, cart has %d items (%s)\n", qty, p.Name, c.Count(), money.Format(c.Total()))
	return nil
}

func cmdSet(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "product id")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("missing quantity")
	}
	qty, err := argInt(args, 1, "quantity", 0)
	if err != nil {
		return err
	}
	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	if err := c.UpdateQuantity(id, qty); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "cart has %d items (%s)\n", c.Count(), money.Format(c.Total()))
	return nil
}

func cmdRemove(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "product id")
	if err != nil {
		return err
	}
	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	if err := c.Remove(id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "cart has %d items (%s)\n", c.Count(), money.Format(c.Total()))
	return nil
}

func cmdClear(ctx context.Context, a *cli, args []string) error {
	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "cart cleared")
	return nil
}

func cmdCheckout(ctx context.Context, a *cli, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	fs := newFlags("checkout", a.out)
	var addr models.ShippingAddress
	fs.StringVar(&addr.FullName, "name", a.session.User.Name, "recipient")
	fs.StringVar(&addr.Address, "address", "", "street address")
	fs.StringVar(&addr.City, "city", "", "city")
	fs.StringVar(&addr.Region, "region", "", "region")
	fs.StringVar(&addr.Phone, "phone", "", "phone")
	payment := fs.String("payment", string(models.PaymentWebpay), "webpay or transfer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.state.openCart()
	if err != nil {
		return err
	}
	if c.Len() == 0 {
		return errors.New("cart is empty")
	}

	lines := make([]models.OrderLineInput, 0, c.Len())
	for _, item := range c.Items() {
		lines = append(lines, models.OrderLineInput{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	order, err := a.api.PlaceOrder(ctx, models.CreateOrderInput{
		UserID:          a.session.User.ID,
		Items:           lines,
		ShippingAddress: addr,
		PaymentMethod:   models.PaymentMethod(strings.ToLower(*payment)),
	})
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "order %s placed: %s, status %s\n", order.OrderNumber, money.Format(order.Total), order.Status)
	return nil
}

func cmdOrders(ctx context.Context, a *cli, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	orders, err := a.api.MyOrders(ctx, a.session.User.ID)
	if err != nil {
		return err
	}
	a.printOrders(orders)
	return nil
}

func cmdAllOrders(ctx context.Context, a *cli, args []string) error {
	orders, err := a.api.Orders(ctx)
	if err != nil {
		return err
	}
	a.printOrders(orders)
	return nil
}

func cmdOrderStatus(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "order id")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("missing status")
	}
	o, err := a.api.UpdateOrderStatus(ctx, id, models.OrderStatus(strings.ToLower(args[1])))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "order %s is now %s\n", o.OrderNumber, o.Status)
	if next := o.Status.NextStatuses(); len(next) > 0 {
		fmt.Fprintf(a.out, "next: %v\n", next)
	}
	return nil
}

func cmdProductAdd(ctx context.Context, a *cli, args []string) error {
	fs := newFlags("product-add", a.out)
	var in models.ProductInput
	var price, stock int64
	fs.StringVar(&in.Name, "name", "", "product name")
	fs.Int64Var(&price, "price", 0, "price in CLP")
	fs.StringVar(&in.Category, "category", "", "category")
	fs.StringVar(&in.Image, "image", "", "image URL")
	fs.Int64Var(&stock, "stock", 0, "units in stock")
	fs.StringVar(&in.Description, "description", "", "description")
	fs.StringVar(&in.Specs, "specs", "", "technical details")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Price = models.FlexInt(price)
	in.Stock = models.FlexInt(stock)

	p, err := a.api.CreateProduct(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created product %d: %s\n", p.ID, p.Name)
	return nil
}

func cmdProductUpdate(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "product id")
	if err != nil {
		return err
	}
	fs := newFlags("product-update", a.out)
	name := fs.String("name", "", "product name")
	price := fs.Int64("price", -1, "price in CLP")
	category := fs.String("category", "", "category")
	image := fs.String("image", "", "image URL")
	stock := fs.Int64("stock", -1, "units in stock")
	description := fs.String("description", "", "description")
	specs := fs.String("specs", "", "technical details")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	// only flags that were given end up in the patch
	var patch models.ProductPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.Name = name
		case "price":
			v := models.FlexInt(*price)
			patch.Price = &v
		case "category":
			patch.Category = category
		case "image":
			patch.Image = image
		case "stock":
			v := models.FlexInt(*stock)
			patch.Stock = &v
		case "description":
			patch.Description = description
		case "specs":
			patch.Specs = specs
		}
	})

	p, err := a.api.UpdateProduct(ctx, id, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated product %d: %s, %s, stock %d\n", p.ID, p.Name, money.Format(p.Price), p.Stock)
	return nil
}

func cmdProductDelete(ctx context.Context, a *cli, args []string) error {
	id, err := argID(args, 0, "product id")
	if err != nil {
		return err
	}
	if err := a.api.DeleteProduct(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted product %d\n", id)
	return nil
}

func cmdUsers(ctx context.Context, a *cli, args []string) error {
	users, err := a.api.Users(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return tw.Flush()
}
