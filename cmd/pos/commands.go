package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-pos-client/api"
	"github.com/jrsteele09/go-pos-client/internal/config"
	"github.com/pkg/errors"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"
)

const runtimeKey = "runtime"

// Build information, set via ldflags.
var Version = "dev"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "pos",
		Usage:    "POS terminal client",
		Version:  Version,
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			navigateCommand(),
			productsCommand(),
			categoriesCommand(),
			cashCommand(),
			salesCommand(),
			metricsCommand(),
			shellCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, ok := c.App.Metadata[runtimeKey].(*runtime); ok {
				return nil
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			c.App.Metadata[runtimeKey] = rt

			if rt.auth.Resume(c.Context) {
				rt.logger.Info().Msg("Session resumed")
			}
			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"POS_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "Backend base URL (e.g., http://localhost:3000)",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Credential mode: body, cookie",
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "Session store: badger, redis, memory",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
	}
}

// loadConfig layers the global flags over the configuration file and environment.
func loadConfig(c *cli.Context) (*config.Settings, error) {
	overrides := map[string]any{}
	set := func(section, key, flag string) {
		if !c.IsSet(flag) {
			return
		}
		values, ok := overrides[section].(map[string]any)
		if !ok {
			values = map[string]any{}
			overrides[section] = values
		}
		values[key] = c.String(flag)
	}
	set("client", "base_url", "base-url")
	set("auth", "mode", "mode")
	set("storage", "driver", "store")
	set("log", "level", "log-level")

	options := []config.LoadOption{config.WithOverrides(overrides)}
	if path := c.String("config"); path != "" {
		options = append(options, config.WithConfigFile(path))
	}
	return config.Load(options...)
}

func runtimeFrom(c *cli.Context) *runtime {
	rt, _ := c.App.Metadata[runtimeKey].(*runtime)
	return rt
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and open the home view",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			rt := runtimeFrom(c)
			s, err := rt.auth.Login(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return err
			}
			view, err := rt.router.Navigate("/home")
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, map[string]any{"user": s.User, "view": view})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "End the session",
		Action: func(c *cli.Context) error {
			rt := runtimeFrom(c)
			rt.auth.Logout(c.Context)
			return printJSON(c.App.Writer, map[string]any{"view": rt.router.Current()})
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(c *cli.Context) error {
			s := runtimeFrom(c).state.Get()
			if s.User == nil {
				return errors.New("not signed in")
			}
			return printJSON(c.App.Writer, s.User)
		},
	}
}

func navigateCommand() *cli.Command {
	return &cli.Command{
		Name:      "navigate",
		Usage:     "Resolve a view through the route guards",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			view, err := runtimeFrom(c).router.Navigate(path)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, map[string]any{"requested": path, "view": view})
		},
	}
}

func productsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "Inventory",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List products",
				Action: func(c *cli.Context) error {
					page, err := runtimeFrom(c).api.ListProducts(c.Context)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, page)
				},
			},
			{
				Name:  "create",
				Usage: "Create a product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "code"},
					&cli.IntFlag{Name: "stock"},
					&cli.Float64Flag{Name: "price", Required: true},
					&cli.Float64Flag{Name: "cost"},
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{Name: "description"},
					&cli.BoolFlag{Name: "online"},
				},
				Action: func(c *cli.Context) error {
					product, err := runtimeFrom(c).api.CreateProduct(c.Context, api.CreateProductRequest{
						Code:        optional(c, "code"),
						Name:        c.String("name"),
						Stock:       c.Int("stock"),
						SalePrice:   c.Float64("price"),
						CostPrice:   c.Float64("cost"),
						Category:    optional(c, "category"),
						Description: optional(c, "description"),
						ShowOnline:  c.Bool("online"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, product)
				},
			},
		},
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "Product categories",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List categories",
				Action: func(c *cli.Context) error {
					categories, err := runtimeFrom(c).api.ListCategories(c.Context)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, categories)
				},
			},
			{
				Name:      "create",
				Usage:     "Create a category",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := strings.Join(c.Args().Slice(), " ")
					if name == "" {
						return errors.New("category name is required")
					}
					category, err := runtimeFrom(c).api.CreateCategory(c.Context, name)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, category)
				},
			},
		},
	}
}

func cashCommand() *cli.Command {
	return &cli.Command{
		Name:  "cash",
		Usage: "Cash register",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the open register",
				Action: func(c *cli.Context) error {
					register, err := runtimeFrom(c).api.CashStatus(c.Context)
					if err != nil {
						return err
					}
					if register == nil {
						return printJSON(c.App.Writer, map[string]any{"status": api.CashClosed})
					}
					return printJSON(c.App.Writer, register)
				},
			},
			{
				Name:  "open",
				Usage: "Open the register with a float",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "notes"},
				},
				Action: func(c *cli.Context) error {
					register, err := runtimeFrom(c).api.OpenCash(c.Context, api.OpenCashRequest{
						InitialAmount: c.Float64("amount"),
						Notes:         c.String("notes"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, register)
				},
			},
			{
				Name:  "close",
				Usage: "Close the register with the counted amount",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "amount", Required: true},
				},
				Action: func(c *cli.Context) error {
					register, err := runtimeFrom(c).api.CloseCash(c.Context, api.CloseCashRequest{
						ClosingAmount: c.Float64("amount"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, register)
				},
			},
		},
	}
}

func salesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sales",
		Usage: "Sales",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sales",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "to", Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "search"},
				},
				Action: func(c *cli.Context) error {
					sales, err := runtimeFrom(c).api.ListSales(c.Context, api.SalesFilter{
						From:   c.String("from"),
						To:     c.String("to"),
						Search: c.String("search"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, sales)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one sale",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return errors.New("sale id is required")
					}
					sale, err := runtimeFrom(c).api.GetSale(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, sale)
				},
			},
			{
				Name:  "create",
				Usage: "Record a sale",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "item", Usage: "name:price:quantity", Required: true},
					&cli.StringFlag{Name: "method", Value: string(api.PaymentCash)},
					&cli.Float64Flag{Name: "paid", Usage: "amount tendered, defaults to the total"},
					&cli.StringFlag{Name: "customer"},
					&cli.StringFlag{Name: "nit"},
				},
				Action: func(c *cli.Context) error {
					req, err := saleRequest(c)
					if err != nil {
						return err
					}
					sale, err := runtimeFrom(c).api.CreateSale(c.Context, req)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, sale)
				},
			},
		},
	}
}

func saleRequest(c *cli.Context) (api.CreateSaleRequest, error) {
	var req api.CreateSaleRequest
	for _, raw := range c.StringSlice("item") {
		item, err := parseItem(raw)
		if err != nil {
			return req, err
		}
		req.Items = append(req.Items, item)
		req.Total += item.Subtotal
	}

	paid := req.Total
	if c.IsSet("paid") {
		paid = c.Float64("paid")
	}
	if paid < req.Total {
		return req, errors.Errorf("paid %.2f is less than the total %.2f", paid, req.Total)
	}
	req.Payment = api.Payment{
		Method: api.PaymentMethod(c.String("method")),
		Paid:   paid,
		Change: paid - req.Total,
	}
	if c.IsSet("customer") || c.IsSet("nit") {
		req.Customer = &api.Customer{Name: optional(c, "customer"), NIT: optional(c, "nit")}
	}
	return req, nil
}

// parseItem reads "name:price:quantity". The name may itself contain colons.
func parseItem(raw string) (api.SaleItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return api.SaleItem{}, errors.Errorf("item %q: want name:price:quantity", raw)
	}
	n := len(parts)
	price, err := strconv.ParseFloat(parts[n-2], 64)
	if err != nil {
		return api.SaleItem{}, errors.Wrapf(err, "item %q: price", raw)
	}
	quantity, err := strconv.Atoi(parts[n-1])
	if err != nil || quantity <= 0 {
		return api.SaleItem{}, errors.Errorf("item %q: quantity must be a positive integer", raw)
	}
	return api.SaleItem{
		Name:     strings.Join(parts[:n-2], ":"),
		Price:    price,
		Quantity: quantity,
		Subtotal: price * float64(quantity),
	}, nil
}

func optional(c *cli.Context, flag string) *string {
	if !c.IsSet(flag) {
		return nil
	}
	v := c.String(flag)
	return &v
}

func metricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Dump the session pipeline counters of this process",
		Action: func(c *cli.Context) error {
			families, err := runtimeFrom(c).registry.Gather()
			if err != nil {
				return err
			}
			encoder := expfmt.NewEncoder(c.App.Writer, expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, family := range families {
				if err := encoder.Encode(family); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive mode, keeps the session in memory between commands",
		Action: func(c *cli.Context) error {
			rt := runtimeFrom(c)
			displayAppname(rt.cfg.GetAppName())
			view, err := rt.router.Navigate("")
			if err == nil {
				fmt.Fprintf(c.App.Writer, "view: %s\n", view)
			}
			return runShell(c.App, c.App.Reader, c.App.Writer)
		},
	}
}

// runShell feeds each input line back through app until EOF or "exit".
func runShell(app *cli.App, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "pos> ")
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		case "shell":
			continue
		}
		if err := app.Run(append([]string{app.Name}, args...)); err != nil {
			fmt.Fprintf(app.ErrWriter, "error: %v\n", err)
		}
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
