// Command ludex - консольный клиент бэк-офиса магазина.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/mmeshcher/ludex-store/internal/config"
	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/prefs"
	"github.com/mmeshcher/ludex-store/internal/remote"
)

// commandTimeout ограничивает разовые команды. watch работает до сигнала.
const commandTimeout = 30 * time.Second

// errUsage возвращается при неверном вызове команды.
var errUsage = errors.New("invalid usage")

// app содержит зависимости команд клиента.
type app struct {
	gw     gateway.Gateway
	prefs  *prefs.File
	locale language.Tag
	log    *zap.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

func (a *app) today() string { return model.FormatDate(a.now()) }

func usage(w io.Writer) {
	fmt.Fprintf(w, `ludex - store back-office client
Usage:
  ludex [-u URL] [-k KEY] [-p PREFS] [-l LOCALE] <cmd> [args]

Collections: subscriptions, transactions, customers, products, sales

Commands:
  list   <collection> [-q query] [-type expense|income]
  stats  [collection] [-type expense|income]   (dashboard without collection)
  watch  <collection> [-q query] [-type expense|income]
  add    <collection> [-json doc] [-type expense|income]
  edit   <collection> -id ID -json doc
  rm     <collection> -id ID
  purchase-add -customer ID -details text [-date YYYY-MM-DD]
  purchase-set -customer ID -id PID [-date YYYY-MM-DD] [-details text]
  purchase-rm  -customer ID -id PID
  prefs  [-skip-delete-warning true|false]
`)
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	flag.CommandLine.Usage = func() { usage(os.Stderr) }
	cfg, args, err := config.ParseClient(flag.CommandLine, os.Args[1:])
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	locale, err := language.Parse(cfg.CollationLocale)
	if err != nil {
		sugar.Fatalw("invalid collation locale", "locale", cfg.CollationLocale, "error", err.Error())
	}

	a := &app{
		gw:     remote.NewClient(cfg.StoreURL, cfg.AccessKey, logger),
		prefs:  prefs.NewFile(cfg.PrefsPath),
		locale: locale,
		log:    logger,
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
		now:    time.Now,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, args); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			usage(os.Stderr)
			logger.Sync()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		logger.Sync()
		os.Exit(1)
	}
}

// run выполняет команду args[0].
func (a *app) run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	if cmd != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, commandTimeout)
		defer cancel()
	}

	switch cmd {
	case "list":
		return a.cmdList(ctx, rest)
	case "stats":
		return a.cmdStats(ctx, rest)
	case "watch":
		return a.cmdWatch(ctx, rest)
	case "add":
		return a.cmdAdd(ctx, rest)
	case "edit":
		return a.cmdEdit(ctx, rest)
	case "rm":
		return a.cmdRemove(ctx, rest)
	case "purchase-add":
		return a.cmdPurchaseAdd(ctx, rest)
	case "purchase-set":
		return a.cmdPurchaseSet(ctx, rest)
	case "purchase-rm":
		return a.cmdPurchaseRemove(ctx, rest)
	case "prefs":
		return a.cmdPrefs(rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
