package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mousybusiness/moroccoview/internal/config"
	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/mousybusiness/moroccoview/internal/logging"
	"github.com/mousybusiness/moroccoview/internal/static"
	"github.com/mousybusiness/moroccoview/pkg/agency"
	"github.com/mousybusiness/moroccoview/pkg/authn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const title = "Morocco View"

type Options struct {
	Config string `short:"c" long:"config" description:"config file, CONFIG_PATH when omitted"`
}

type app struct {
	options Options
	out     io.Writer
	// connect builds the client; replaced in tests
	connect func(ctx context.Context, cfg config.Config) (*authn.Client, error)
	cfg     *config.Config
}

// Run parses args and executes the selected command.
func Run(args []string) error {
	return newApp(os.Stdout).run(args)
}

func newApp(out io.Writer) *app {
	return &app{
		out: out,
		connect: func(ctx context.Context, cfg config.Config) (*authn.Client, error) {
			return authn.New(ctx, cfg)
		},
	}
}

func (a *app) run(args []string) error {
	parser := flags.NewParser(&a.options, flags.Default)

	commands := []struct {
		name, short string
		data        interface{}
	}{
		{"login", "Log in with a username and password", &loginCmd{app: a}},
		{"logout", "Forget the stored session", &logoutCmd{app: a}},
		{"status", "Restore and report the stored session", &statusCmd{app: a}},
		{"whoami", "Show the identity in the current access token", &whoamiCmd{app: a}},
		{"account", "Open the identity provider's account console", &accountCmd{app: a}},
		{"metrics", "Show agency metrics", &metricsCmd{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			return err
		}
	}

	tourists, err := parser.AddCommand("tourists", "Manage tourists", "", &struct{}{})
	if err != nil {
		return err
	}
	if _, err := tourists.AddCommand("list", "List tourists", "", &touristsListCmd{app: a}); err != nil {
		return err
	}
	if _, err := tourists.AddCommand("add", "Add a tourist", "", &touristsAddCmd{app: a}); err != nil {
		return err
	}

	_, err = parser.ParseArgs(args)
	return err
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.options.Config)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// with runs fn against a connected client and closes it afterwards.
func (a *app) with(fn func(ctx context.Context, c *authn.Client) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := a.connect(ctx, *cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error(errors.Wrap(err, "error while closing client"))
		}
	}()

	return fn(ctx, c)
}

func (a *app) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

type loginCmd struct {
	app      *app
	Username string `short:"u" long:"username" description:"agency username or email" required:"true"`
	Password string `short:"p" long:"password" description:"password" env:"AGENCY_PASSWORD" required:"true"`
}

func (c *loginCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		if _, err := client.Session.Login(ctx, c.Username, c.Password); err != nil {
			reason := ""
			if errs.Kind(err) == errs.KindInvalidCredentials {
				reason = err.Error()
			}
			c.app.printf("%s\n", static.FailedText(title, reason))
			return err
		}

		id, _, err := client.Session.Identity(ctx)
		if err != nil {
			return err
		}
		c.app.printf("%s\n", static.SuccessText(title, id.Name))
		return nil
	})
}

type logoutCmd struct {
	app *app
}

func (c *logoutCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		if err := client.Session.Logout(ctx); err != nil {
			return err
		}
		c.app.printf("logged out\n")
		return nil
	})
}

type statusCmd struct {
	app *app
}

func (c *statusCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		state, err := client.Session.Restore(ctx)
		if err != nil {
			return err
		}
		c.app.printf("session: %v\n", state)

		pair, err := client.Session.Tokens(ctx)
		if err != nil {
			return err
		}
		if pair.Present() {
			c.app.printf("access token expires:  %v\n", formatInstant(pair.AccessExpiresAt))
			c.app.printf("refresh token expires: %v\n", formatInstant(pair.RefreshExpiresAt))
		}
		return nil
	})
}

type whoamiCmd struct {
	app *app
}

func (c *whoamiCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		id, ok, err := client.Session.Identity(ctx)
		if err != nil {
			return err
		}
		if !ok {
			c.app.printf("not logged in\n")
			return nil
		}
		c.app.printf("name:    %v\nemail:   %v\naddress: %v\nphone:   %v\n", id.Name, id.Email, id.Address, id.PhoneNumber)
		return nil
	})
}

type accountCmd struct {
	app *app
}

func (c *accountCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		uri := client.AccountURL()
		if static.IsDesktop() {
			if err := static.Open(uri); err != nil {
				c.app.printf("Couldn't open browser, please visit manually\n")
			}
		}
		c.app.printf("Visit the account console: %v\n", uri)
		return nil
	})
}

type metricsCmd struct {
	app *app
}

func (c *metricsCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		m, err := client.Agency.Metrics(ctx)
		if err != nil {
			return err
		}
		c.app.printf("total tourists: %d\nlogged in:      %d\nrevenue:        %.2f MAD\ncommission:     %.2f MAD\n",
			m.Total, m.LoggedIn, m.TotalRevenue, m.Commission())
		return nil
	})
}

type touristsListCmd struct {
	app *app
}

func (c *touristsListCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		tourists, err := client.Agency.Tourists(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(c.app.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tEMAIL\tLAST ACTIVE\tONLINE\tPURCHASES")
		for _, t := range tourists {
			_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%d\n", t.Name(), t.Email, lastActive(t), t.LoggedIn, t.Purchases)
		}
		return w.Flush()
	})
}

type touristsAddCmd struct {
	app       *app
	FirstName string `long:"first-name" description:"first name" required:"true"`
	LastName  string `long:"last-name" description:"last name" required:"true"`
	Email     string `long:"email" description:"email" required:"true"`
}

func (c *touristsAddCmd) Execute([]string) error {
	return c.app.with(func(ctx context.Context, client *authn.Client) error {
		created, err := client.Agency.CreateTourist(ctx, agency.NewTourist{
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
		})
		if err != nil {
			return err
		}
		c.app.printf("Tourist added successfully: %v <%v>\n", created.Name(), created.Email)
		return nil
	})
}

func lastActive(t agency.Tourist) string {
	at, ok := t.LastActiveTime()
	if !ok {
		return static.NeverActive
	}
	return at.Format("Jan 02, 2006")
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}
