package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/auth"
	"github.com/vyrodovalexey/shoplist/internal/cache"
	"github.com/vyrodovalexey/shoplist/internal/client"
	"github.com/vyrodovalexey/shoplist/internal/config"
	"github.com/vyrodovalexey/shoplist/internal/lists"
	"github.com/vyrodovalexey/shoplist/internal/model"
	"github.com/vyrodovalexey/shoplist/internal/recipe"
	"github.com/vyrodovalexey/shoplist/internal/service"
)

var (
	errRemote        = errors.New("remote operation failed")
	errOffline       = errors.New("backend unreachable, showing cached lists")
	errIncomplete    = errors.New("not every item was added")
	errNoCatalog     = errors.New("recipes_path is not configured")
	errUnknownList   = errors.New("unknown list")
	errUnknownCmd    = errors.New("unknown command")
	errMissingTarget = errors.New("one of -list or -new is required")
)

// app wires the client side: remote client, cache, session, list service,
// list store and recipe actions.
type app struct {
	cfg    *config.Config
	out    io.Writer
	logger *zap.Logger

	client   *client.Client
	cache    *cache.Cache
	session  *auth.Session
	registry *prometheus.Registry
	lists    *lists.Store
	actions  *recipe.Actions
}

func newApp(cfg *config.Config, logger *zap.Logger, out io.Writer) (*app, error) {
	policy, err := recipe.ParsePolicy(cfg.PartialFailure)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cache.Options{Path: cfg.CachePath, TTL: cfg.CacheTTL}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	var opts []client.Option
	if cfg.RemoteAPIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.RemoteAPIKey))
	}
	cl := client.New(cfg.RemoteURL, logger, opts...)

	session := auth.NewSession(cl.Ping, logger)
	registry := prometheus.NewRegistry()
	svc := service.New(cl, c, session, logger, service.WithMetrics(service.NewMetrics(registry)))
	listStore := lists.New(svc, lists.Options{ReorderRollback: cfg.ReorderRollback}, logger)
	actions := recipe.New(svc, listStore, recipe.Options{Policy: policy}, logger)

	return &app{
		cfg:      cfg,
		out:      out,
		logger:   logger,
		client:   cl,
		cache:    c,
		session:  session,
		registry: registry,
		lists:    listStore,
		actions:  actions,
	}, nil
}

func (a *app) close() {
	a.lists.Wait()
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close cache", zap.Error(err))
	}
	_ = a.client.Close()
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "lists":
		// Without a session the store falls back to the cached lists.
		if err := a.session.Login(ctx); err != nil {
			a.logger.Warn("login failed", zap.Error(err))
		}
	case "create", "delete", "reorder", "add", "add-recipe", "watch":
		if err := a.session.Login(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	case "recipes", "clear-cache":
	default:
		return fmt.Errorf("%w: %q: %w", errUnknownCmd, cmd, errUsage)
	}

	switch cmd {
	case "lists":
		return a.listLists(ctx)
	case "create":
		return a.create(ctx, args)
	case "delete":
		return a.delete(ctx, args)
	case "reorder":
		return a.reorder(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "recipes":
		return a.recipes()
	case "clear-cache":
		return a.clearCache()
	case "add-recipe":
		return a.addRecipe(ctx, args)
	default:
		return a.watch(ctx, args)
	}
}

func (a *app) load(ctx context.Context) error {
	if !a.lists.Load(ctx) {
		return fmt.Errorf("%w: load lists", errRemote)
	}
	return nil
}

func (a *app) listLists(ctx context.Context) error {
	if err := a.load(ctx); err != nil {
		if len(a.lists.Lists()) == 0 {
			return err
		}
		if err := a.printLists(); err != nil {
			return err
		}
		return errOffline
	}
	return a.printLists()
}

func (a *app) clearCache() error {
	n := len(a.cache.ListIDs())
	a.cache.InvalidateAll()
	fmt.Fprintf(a.out, "cleared cached data for %d lists\n", n)
	return nil
}

func (a *app) create(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("create takes NAME [DESCRIPTION]: %w", errUsage)
	}
	description := ""
	if len(args) == 2 {
		description = args[1]
	}

	id := a.lists.CreateList(ctx, args[0], description)
	if id == "" {
		return fmt.Errorf("%w: create list", errRemote)
	}
	fmt.Fprintln(a.out, id)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete takes LIST_ID: %w", errUsage)
	}
	if err := a.load(ctx); err != nil {
		return err
	}
	if _, ok := a.lists.Get(args[0]); !ok {
		return fmt.Errorf("%w: %s", errUnknownList, args[0])
	}
	if !a.lists.DeleteList(ctx, args[0]) {
		return fmt.Errorf("%w: delete list %s", errRemote, args[0])
	}
	return nil
}

func (a *app) reorder(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("reorder takes every LIST_ID in the new order: %w", errUsage)
	}
	if err := a.load(ctx); err != nil {
		return err
	}
	if !a.lists.ReorderLists(ctx, args) {
		return fmt.Errorf("reorder must name every list exactly once: %w", errUsage)
	}
	a.lists.Wait()

	// Re-read so the printed order is what the backend holds.
	if !a.lists.Sync(ctx) {
		return fmt.Errorf("%w: reload lists", errRemote)
	}
	return a.printLists()
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("add takes LIST_ID ITEM...: %w", errUsage)
	}
	if err := a.load(ctx); err != nil {
		return err
	}
	if !a.actions.AddIngredientsToList(ctx, args[0], args[1:]) {
		return errIncomplete
	}
	return a.printLists()
}

func (a *app) catalog() (*recipe.Catalog, error) {
	if a.cfg.RecipesPath == "" {
		return nil, errNoCatalog
	}
	return recipe.LoadCatalog(a.cfg.RecipesPath)
}

func (a *app) recipes() error {
	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSERVINGS\tINGREDIENTS")
	for _, r := range catalog.All() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Servings, strings.Join(r.Ingredients, ", "))
	}
	return w.Flush()
}

func (a *app) addRecipe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-recipe", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	servings := fs.Int("servings", 0, "scale the recipe to this many servings")
	listID := fs.String("list", "", "add to an existing list")
	newName := fs.String("new", "", "create a list with this name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, errUsage)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("add-recipe takes one RECIPE_ID: %w", errUsage)
	}
	if (*listID == "") == (*newName == "") {
		return fmt.Errorf("%w: %w", errMissingTarget, errUsage)
	}

	catalog, err := a.catalog()
	if err != nil {
		return err
	}
	r, err := catalog.Get(fs.Arg(0))
	if err != nil {
		return err
	}

	if *newName != "" {
		id, complete := a.actions.CreateListWithIngredients(ctx, *newName, r.Name, r.ScaledIngredients(*servings))
		if id == "" {
			return fmt.Errorf("%w: create list", errRemote)
		}
		fmt.Fprintln(a.out, id)
		if !complete {
			return errIncomplete
		}
		return nil
	}

	if err := a.load(ctx); err != nil {
		return err
	}
	if !a.actions.AddRecipeToList(ctx, *listID, r, *servings) {
		return errIncomplete
	}
	return a.printLists()
}

// watch prints the lists whenever the backend reports a change, until ctx is
// cancelled.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, errUsage)
	}

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	if err := a.load(ctx); err != nil {
		return err
	}
	if err := a.printLists(); err != nil {
		return err
	}

	changes, cancel := a.lists.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.follow(ctx, a.client.Watcher(client.DefaultRetryInterval).Run)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-changes:
			if a.lists.IsSyncing() {
				continue
			}
			if err := a.printLists(); err != nil {
				return err
			}
		}
	}
}

// follow runs the change feed until ctx is done and syncs the lists on
// every event.
func (a *app) follow(ctx context.Context, feed func(context.Context, func(model.ListEvent)) error) {
	err := feed(ctx, func(ev model.ListEvent) {
		a.logger.Debug("remote change", zap.String("type", ev.Type), zap.String("list_id", ev.ListID))
		a.lists.Sync(ctx)
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Error("change feed stopped", zap.Error(err))
	}
}

func (a *app) printLists() error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tITEMS\tDONE")
	for _, l := range a.lists.Lists() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Name, count(l.ItemCount), count(l.CompletedCount))
	}
	return w.Flush()
}

func count(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}
