package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/auth"
	"github.com/idilsaglam/board/internal/board"
	"github.com/idilsaglam/board/internal/gateway"
	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
	"github.com/idilsaglam/board/internal/tui"
	"github.com/idilsaglam/board/internal/ui"
)

// session is a loaded controller plus what it talks to.
type session struct {
	ctl    *board.Controller
	remote *gateway.HTTP // nil with --local
	close  func()
}

func (r *runner) connect(c *cli.Context, logger *zap.Logger) (*session, error) {
	var (
		gw     board.Gateway
		remote *gateway.HTTP
		closer = func() {}
	)
	if c.Bool("local") {
		st, err := openStore(c.Context, r.cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Ensure(c.Context, r.cfg.Client.Board); err != nil {
			_ = st.Close()
			return nil, err
		}
		gw = gateway.NewLocal(st, r.cfg.Client.Board)
		closer = func() {
			if err := st.Close(); err != nil {
				logger.Warn("close store", zap.Error(err))
			}
		}
	} else {
		cred, err := r.keyring.Get()
		if err != nil {
			return nil, cli.Exit(err.Error(), ExitUsage)
		}
		remote, err = gateway.NewHTTP(r.cfg.Client.URL, r.cfg.Client.Board, cred.Token,
			gateway.WithLogger(logger),
			gateway.WithVersionCheck(r.cfg.Client.VersionCheck),
		)
		if err != nil {
			return nil, usageError("%v", err)
		}
		gw = remote
	}

	opts := []board.Option{
		board.WithLogger(logger),
		board.WithSerializedWrites(r.cfg.Client.SerializeWrites),
		board.WithSectionPlaceholder(r.cfg.UI.SectionPlaceholder),
	}
	if r.cfg.UI.NotifyFailures {
		opts = append(opts, board.WithNotifier(func(f board.Failure) {
			ui.Warn(fmt.Sprintf("%s failed, change undone: %v", f.Op, f.Err))
		}))
	}
	ctl := board.New(gw, opts...)
	if err := ctl.Load(c.Context); err != nil {
		closer()
		return nil, explain(err)
	}
	return &session{ctl: ctl, remote: remote, close: closer}, nil
}

// explain attaches exit codes and hints to controller errors.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case board.IsIndexError(err):
		return usageError("%v (run `board show` for addresses)", err)
	case errors.Is(err, store.ErrUnauthorized):
		return cli.Exit(fmt.Sprintf("%v: run `board auth login`", err), ExitError)
	}
	return err
}

// edit runs fn against a loaded board and prints the result.
func (r *runner) edit(c *cli.Context, fn func(ctx context.Context, ctl *board.Controller) error) error {
	s, err := r.connect(c, r.logger)
	if err != nil {
		return err
	}
	defer s.close()
	if err := fn(c.Context, s.ctl); err != nil {
		return explain(err)
	}
	ui.Panel(ui.Stdout, ui.BoardLines(s.ctl.Document(), r.title()))
	return nil
}

func (r *runner) title() string { return "Meeting " + r.cfg.Client.Board }

func (r *runner) list(c *cli.Context) error {
	// Log lines would tear the alternate screen.
	logger := r.logger
	if r.cfg.Log.File == "" {
		logger = zap.NewNop()
	}
	s, err := r.connect(c, logger)
	if err != nil {
		return err
	}
	defer s.close()

	var watch tui.Watcher
	if r.cfg.Client.Live && s.remote != nil {
		watch = func(ctx context.Context, fn func(model.Document) bool) error {
			return s.remote.Watch(ctx, func(snap gateway.Snapshot) bool { return fn(snap.Document) })
		}
	}
	return tui.Run(c.Context, s.ctl, tui.Options{
		Title:          r.title(),
		NotifyFailures: r.cfg.UI.NotifyFailures,
		Styles:         ui.StylesFor(ui.Current()),
	}, watch)
}

func (r *runner) show(c *cli.Context) error {
	return r.edit(c, func(context.Context, *board.Controller) error { return nil })
}

func (r *runner) addItem(c *cli.Context) error {
	if c.NArg() < 2 {
		return usageError("usage: board add <section> <text...>")
	}
	section, err := parseSection(c.Args().First())
	if err != nil {
		return err
	}
	text := strings.Join(c.Args().Tail(), " ")
	if strings.TrimSpace(text) == "" {
		return usageError("item text is empty")
	}
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		return ctl.AddItem(ctx, section, text)
	})
}

func (r *runner) toggleItem(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("usage: board done <section.item>")
	}
	section, item, err := parseAddress(c.Args().First())
	if err != nil {
		return err
	}
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		return ctl.ToggleItem(ctx, section, item)
	})
}

func (r *runner) editItem(c *cli.Context) error {
	if c.NArg() < 2 {
		return usageError("usage: board edit <section.item> <text...>")
	}
	section, item, err := parseAddress(c.Args().First())
	if err != nil {
		return err
	}
	text := strings.Join(c.Args().Tail(), " ")
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		if err := ctl.BeginEdit(section, item); err != nil {
			return err
		}
		if err := ctl.EditItemText(section, item, text); err != nil {
			ctl.EndEdit()
			return err
		}
		return ctl.FinishEdit(ctx)
	})
}

func (r *runner) removeItem(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("usage: board rm <section.item>")
	}
	section, item, err := parseAddress(c.Args().First())
	if err != nil {
		return err
	}
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		return ctl.DeleteItem(ctx, section, item)
	})
}

func (r *runner) addSection(c *cli.Context) error {
	title := strings.Join(c.Args().Slice(), " ")
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		if title == "" {
			return ctl.AddSection(ctx)
		}
		return ctl.Do(ctx, board.AddSection{Title: title})
	})
}

func (r *runner) renameSection(c *cli.Context) error {
	if c.NArg() < 2 {
		return usageError("usage: board section rename <section> <title...>")
	}
	section, err := parseSection(c.Args().First())
	if err != nil {
		return err
	}
	title := strings.Join(c.Args().Tail(), " ")
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		return ctl.RenameSection(ctx, section, title)
	})
}

func (r *runner) removeSection(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("usage: board section rm <section>")
	}
	section, err := parseSection(c.Args().First())
	if err != nil {
		return err
	}
	return r.edit(c, func(ctx context.Context, ctl *board.Controller) error {
		return ctl.DeleteSection(ctx, section)
	})
}

func (r *runner) authLogin(c *cli.Context) error {
	token := c.String("token")
	if token == "" {
		sc := bufio.NewScanner(r.stdin)
		if sc.Scan() {
			token = sc.Text()
		}
		if err := sc.Err(); err != nil {
			return err
		}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return usageError("auth login: empty credential")
	}
	if err := r.keyring.Set(token, r.cfg.Client.URL); err != nil {
		return err
	}
	ui.OK("credential saved for " + r.cfg.Client.URL)
	return nil
}

func (r *runner) authLogout(*cli.Context) error {
	if err := r.keyring.Delete(); err != nil {
		return err
	}
	ui.OK("credential removed")
	if cred, err := r.keyring.Get(); err == nil && cred.Source == "env" {
		ui.Warn(auth.EnvToken + " is still set and will be used")
	}
	return nil
}

func (r *runner) authStatus(*cli.Context) error {
	cred, err := r.keyring.Get()
	if err != nil {
		return cli.Exit(err.Error(), ExitError)
	}
	server := cred.Server
	if server == "" {
		server = r.cfg.Client.URL
	}
	fmt.Fprintf(ui.Stdout, "token  %s\nsource %s\nserver %s\n", auth.Mask(cred.Token), cred.Source, server)
	return nil
}
