package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/ludex-store/internal/form"
	"github.com/mmeshcher/ludex-store/internal/livestore"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/screen"
	"github.com/mmeshcher/ludex-store/internal/view"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// collectionCommand разбирает "<collection> [flags]" и флаги представления.
type collectionCommand struct {
	collection model.Collection
	entity     entityCommands
	fs         *flag.FlagSet
	query      *string
	typ        *string
}

func (a *app) collectionCommand(name string, args []string) (*collectionCommand, error) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return nil, fmt.Errorf("%w: %s requires a collection", errUsage, name)
	}
	c, e, err := lookup(args[0])
	if err != nil {
		return nil, err
	}
	fs := a.flagSet(name)
	return &collectionCommand{
		collection: c,
		entity:     e,
		fs:         fs,
		query:      fs.String("q", "", "case-insensitive search"),
		typ:        fs.String("type", string(model.TransactionExpense), "transaction type: expense or income"),
	}, nil
}

func (cc *collectionCommand) parse(args []string) (viewOptions, error) {
	if err := cc.fs.Parse(args[1:]); err != nil {
		return viewOptions{}, err
	}
	typ := model.TransactionType(*cc.typ)
	if !typ.Valid() {
		return viewOptions{}, fmt.Errorf("%w: -type must be expense or income", errUsage)
	}
	return viewOptions{query: *cc.query, typ: typ}, nil
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	cc, err := a.collectionCommand("list", args)
	if err != nil {
		return err
	}
	o, err := cc.parse(args)
	if err != nil {
		return err
	}

	scr, err := cc.entity.open(ctx, a)
	if err != nil {
		return err
	}
	defer scr.close()

	return printJSON(a.out, cc.entity.rows(a, scr.records(), o))
}

func (a *app) cmdStats(ctx context.Context, args []string) error {
	if len(args) == 0 {
		d, err := a.dashboard(ctx)
		if err != nil {
			return err
		}
		return printJSON(a.out, d)
	}

	cc, err := a.collectionCommand("stats", args)
	if err != nil {
		return err
	}
	o, err := cc.parse(args)
	if err != nil {
		return err
	}

	scr, err := cc.entity.open(ctx, a)
	if err != nil {
		return err
	}
	defer scr.close()

	return printJSON(a.out, cc.entity.stats(a, scr.records(), o))
}

// dashboard загружает все коллекции параллельно и считает сводную статистику.
func (a *app) dashboard(ctx context.Context) (view.Dashboard, error) {
	var snaps view.Snapshots

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snaps.Subscriptions, err = load[model.Subscription](ctx, a)
		return err
	})
	g.Go(func() (err error) {
		snaps.Transactions, err = load[model.Transaction](ctx, a)
		return err
	})
	g.Go(func() (err error) {
		snaps.Customers, err = load[model.Customer](ctx, a)
		return err
	})
	g.Go(func() (err error) {
		snaps.Products, err = load[model.Product](ctx, a)
		return err
	})
	g.Go(func() (err error) {
		snaps.Sales, err = load[model.SaleRecord](ctx, a)
		return err
	})
	if err := g.Wait(); err != nil {
		return view.Dashboard{}, err
	}

	return view.BuildDashboard(snaps, a.now()), nil
}

func load[T model.Entity[T]](ctx context.Context, a *app) ([]T, error) {
	s := screen.New[T](a.gw, a.prefs, a.log)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Records(), nil
}

// cmdWatch печатает представление при каждом новом снимке до отмены ctx.
func (a *app) cmdWatch(ctx context.Context, args []string) error {
	cc, err := a.collectionCommand("watch", args)
	if err != nil {
		return err
	}
	o, err := cc.parse(args)
	if err != nil {
		return err
	}

	updates := make(chan struct{}, 1)
	onUpdate := func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}

	scr, err := cc.entity.open(ctx, a, livestore.WithOnUpdate(onUpdate))
	if err != nil {
		return err
	}
	defer scr.close()

	// Первая загрузка уже в снимке, её уведомление не должно давать второй вывод.
	select {
	case <-updates:
	default:
	}

	for {
		if scr.stale() {
			fmt.Fprintln(a.errOut, "warning: showing last known data, the store is unreachable")
		}
		if err := printJSON(a.out, cc.entity.rows(a, scr.records(), o)); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-updates:
		}
	}
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	cc, err := a.collectionCommand("add", args)
	if err != nil {
		return err
	}
	doc := cc.fs.String("json", "", "record fields as a JSON object")
	o, err := cc.parse(args)
	if err != nil {
		return err
	}

	if err := cc.entity.add(ctx, a, *doc, o); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s record\n", cc.collection)
	return nil
}

func (a *app) cmdEdit(ctx context.Context, args []string) error {
	cc, err := a.collectionCommand("edit", args)
	if err != nil {
		return err
	}
	id := cc.fs.String("id", "", "record id")
	doc := cc.fs.String("json", "", "changed fields as a JSON object")
	if _, err := cc.parse(args); err != nil {
		return err
	}
	if *id == "" || *doc == "" {
		return fmt.Errorf("%w: edit requires -id and -json", errUsage)
	}

	if err := cc.entity.edit(ctx, a, *id, *doc); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated %s %s\n", cc.collection, *id)
	return nil
}

// Ответы на запрос подтверждения удаления.
const (
	answerYes    = "y"
	answerAlways = "a"
)

func readAnswer(r io.Reader) string {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	cc, err := a.collectionCommand("rm", args)
	if err != nil {
		return err
	}
	id := cc.fs.String("id", "", "record id")
	if _, err := cc.parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: rm requires -id", errUsage)
	}

	gate := cc.entity.gate(a)
	deleted, err := gate.Request(ctx, *id)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintf(a.out, "Delete %s %s? [y]es / [a]lways, don't ask again / [N]o: ", cc.collection, *id)
		switch readAnswer(a.in) {
		case answerYes:
			err = gate.Confirm(ctx, false)
		case answerAlways:
			err = gate.Confirm(ctx, true)
		default:
			gate.Cancel()
			fmt.Fprintln(a.out, "cancelled")
			return nil
		}
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "deleted %s %s\n", cc.collection, *id)
	return nil
}

// editCustomer открывает форму клиента id, применяет fn и сохраняет результат.
func (a *app) editCustomer(ctx context.Context, id string, fn func(s *form.Session[model.Customer]) error) error {
	s := screen.New[model.Customer](a.gw, a.prefs, a.log)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close()

	if err := s.Edit(id); err != nil {
		return err
	}
	if err := fn(s.Form); err != nil {
		return err
	}
	return s.Form.Submit(ctx)
}

func (a *app) cmdPurchaseAdd(ctx context.Context, args []string) error {
	fs := a.flagSet("purchase-add")
	customer := fs.String("customer", "", "customer id")
	date := fs.String("date", "", "purchase date, today by default")
	details := fs.String("details", "", "purchase details")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *customer == "" {
		return fmt.Errorf("%w: purchase-add requires -customer", errUsage)
	}
	if *date == "" {
		*date = a.today()
	}

	var added model.Purchase
	err := a.editCustomer(ctx, *customer, func(s *form.Session[model.Customer]) error {
		p, err := form.AddPurchase(s, *date)
		if err != nil {
			return err
		}
		added = p
		return form.UpdatePurchase(s, p.ID, func(p *model.Purchase) { p.Details = *details })
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added purchase %s\n", added.ID)
	return nil
}

func (a *app) cmdPurchaseSet(ctx context.Context, args []string) error {
	fs := a.flagSet("purchase-set")
	customer := fs.String("customer", "", "customer id")
	id := fs.String("id", "", "purchase id")
	date := fs.String("date", "", "new purchase date")
	details := fs.String("details", "", "new purchase details")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *customer == "" || *id == "" {
		return fmt.Errorf("%w: purchase-set requires -customer and -id", errUsage)
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	err := a.editCustomer(ctx, *customer, func(s *form.Session[model.Customer]) error {
		return form.UpdatePurchase(s, *id, func(p *model.Purchase) {
			if set["date"] {
				p.Date = *date
			}
			if set["details"] {
				p.Details = *details
			}
		})
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated purchase %s\n", *id)
	return nil
}

func (a *app) cmdPurchaseRemove(ctx context.Context, args []string) error {
	fs := a.flagSet("purchase-rm")
	customer := fs.String("customer", "", "customer id")
	id := fs.String("id", "", "purchase id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *customer == "" || *id == "" {
		return fmt.Errorf("%w: purchase-rm requires -customer and -id", errUsage)
	}

	err := a.editCustomer(ctx, *customer, func(s *form.Session[model.Customer]) error {
		return form.RemovePurchase(s, *id)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed purchase %s\n", *id)
	return nil
}

func (a *app) cmdPrefs(args []string) error {
	fs := a.flagSet("prefs")
	skip := fs.String("skip-delete-warning", "", "true or false")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *skip != "" {
		v, err := strconv.ParseBool(*skip)
		if err != nil {
			return fmt.Errorf("%w: -skip-delete-warning: %v", errUsage, err)
		}
		if err := a.prefs.SetSkipDeleteWarning(v); err != nil {
			return err
		}
	}

	values, err := a.prefs.Load()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "# %s\n%s", a.prefs.Path(), out)
	return nil
}
