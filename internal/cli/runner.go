// Package cli is the board command line: the API server, the interactive
// board and one-shot commands that edit the board through the same
// controller the interactive board uses.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/auth"
	"github.com/idilsaglam/board/internal/config"
	"github.com/idilsaglam/board/internal/logging"
	"github.com/idilsaglam/board/internal/ui"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

type runner struct {
	cfg     config.Config
	logger  *zap.Logger
	keyring *auth.Keyring
	stdin   io.Reader
}

// NewApp builds the command tree.
func NewApp() *cli.App {
	return newApp(&runner{stdin: os.Stdin})
}

func newApp(r *runner) *cli.App {
	return &cli.App{
		Name:                 "board",
		Usage:                "a shared meeting board",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (default $BOARD_CONFIG_FILE or " + config.DefaultFile + ")"},
			&cli.StringFlag{Name: "board", Aliases: []string{"b"}, Usage: "board id"},
			&cli.StringFlag{Name: "url", Usage: "server URL"},
			&cli.StringFlag{Name: "theme", Usage: "color theme: " + strings.Join(ui.Themes(), ", ")},
			&cli.BoolFlag{Name: "local", Usage: "edit the configured store directly instead of going through a server"},
		},
		Before: r.before,
		After:  r.after,
		// Errors are returned to main, which maps them to exit codes.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			r.serveCommand(),
			{
				Name:   "ls",
				Usage:  "Open the interactive board",
				Action: r.list,
			},
			{
				Name:   "show",
				Usage:  "Print the board",
				Action: r.show,
			},
			{
				Name:      "add",
				Usage:     "Add an item to a section",
				ArgsUsage: "<section> <text...>",
				Action:    r.addItem,
			},
			{
				Name:      "done",
				Usage:     "Toggle an item",
				ArgsUsage: "<section.item>",
				Action:    r.toggleItem,
			},
			{
				Name:      "edit",
				Usage:     "Replace an item's text",
				ArgsUsage: "<section.item> <text...>",
				Action:    r.editItem,
			},
			{
				Name:      "rm",
				Usage:     "Remove an item",
				ArgsUsage: "<section.item>",
				Action:    r.removeItem,
			},
			{
				Name:  "section",
				Usage: "Manage sections",
				Subcommands: []*cli.Command{
					{Name: "add", Usage: "Append a section", ArgsUsage: "[title...]", Action: r.addSection},
					{Name: "rename", Usage: "Rename a section", ArgsUsage: "<section> <title...>", Action: r.renameSection},
					{Name: "rm", Usage: "Remove a section", ArgsUsage: "<section>", Action: r.removeSection},
				},
			},
			{
				Name:  "auth",
				Usage: "Manage the stored credential",
				Subcommands: []*cli.Command{
					{
						Name:  "login",
						Usage: "Store the shared credential",
						Flags: []cli.Flag{&cli.StringFlag{Name: "token", Usage: "credential (read from stdin when omitted)"}},
						Action: r.authLogin,
					},
					{Name: "logout", Usage: "Forget the stored credential", Action: r.authLogout},
					{Name: "status", Usage: "Show where the credential comes from", Action: r.authStatus},
				},
			},
		},
	}
}

// Run executes args and returns the exit code.
func Run(args []string) int {
	err := NewApp().Run(args)
	if err == nil {
		return ExitOK
	}
	ui.Fail(err.Error())
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitError
}

func usageError(format string, a ...interface{}) error {
	return cli.Exit(fmt.Sprintf(format, a...), ExitUsage)
}

func (r *runner) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	if c.IsSet("board") {
		cfg.Client.Board = c.String("board")
	}
	if c.IsSet("url") {
		cfg.Client.URL = c.String("url")
	}
	if c.IsSet("theme") {
		cfg.UI.Theme = c.String("theme")
	}
	r.cfg = *cfg
	ui.SetTheme(cfg.UI.Theme)

	r.logger, err = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	if r.keyring == nil {
		if r.keyring, err = auth.Default(); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) after(*cli.Context) error {
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	return nil
}

// parseSection reads a 1-based section number.
func parseSection(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, usageError("not a section number: %s", s)
	}
	return n - 1, nil
}

// parseAddress reads a 1-based "section.item" address.
func parseAddress(s string) (section, item int, err error) {
	a, b, ok := strings.Cut(s, ".")
	if !ok {
		return 0, 0, usageError("want <section>.<item>, got %s", s)
	}
	section, err = parseSection(a)
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.Atoi(b)
	if err != nil || n < 1 {
		return 0, 0, usageError("not an item number: %s", b)
	}
	return section, n - 1, nil
}
