package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/antibyte/retrobasic/pkg/auth"
	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/store"
	"github.com/antibyte/retrobasic/pkg/terminal"
	tlsmanager "github.com/antibyte/retrobasic/pkg/tls"

	"github.com/goforj/godump"
	"github.com/peterh/liner"
	"golang.org/x/term"
)

const historyFile = ".retrobasic_history"

// options carries the global flags to the subcommands.
type options struct {
	limits basic.Limits
	dump   bool
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: retrobasic [flags] [command]

Commands:
  (none)            immediate mode prompt
  run FILE          load and run a BASIC source file
  save NAME FILE    store FILE under NAME
  load NAME         print the source stored under NAME
  list [NAME]       list stored programs, or the listing of NAME
  delete NAME       remove a stored program
  serve             start the WebSocket console
  token             print a console token

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "settings.cfg", "configuration file")
	dump := flag.Bool("dump", false, "dump the variable table when a program ends")
	trace := flag.Bool("trace", false, "print line numbers while running")
	flag.Usage = usage
	flag.Parse()

	// configuration first, the logger reads it
	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger.ConfigInfo("retrobasic started - configuration loaded from: %s", *configPath)

	opts := options{limits: basic.LimitsFromConfig(), dump: *dump}
	if *trace {
		opts.limits.Trace = true
	}

	if err := dispatch(opts, flag.Args()); err != nil {
		printError(err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func dispatch(opts options, args []string) error {
	if len(args) == 0 {
		return immediate(opts)
	}
	cmd, rest := args[0], args[1:]
	need := func(n int) error {
		if len(rest) < n {
			usage()
			return fmt.Errorf("%s: missing argument", cmd)
		}
		return nil
	}
	switch cmd {
	case "run":
		if err := need(1); err != nil {
			return err
		}
		return runFile(opts, rest[0])
	case "save":
		if err := need(2); err != nil {
			return err
		}
		return withStore(func(st *store.Store) error { return saveFile(st, rest[0], rest[1]) })
	case "load":
		if err := need(1); err != nil {
			return err
		}
		return withStore(func(st *store.Store) error { return printSource(st, rest[0]) })
	case "list":
		return withStore(func(st *store.Store) error {
			if len(rest) > 0 {
				return printListing(st, rest[0])
			}
			return listPrograms(st)
		})
	case "delete":
		if err := need(1); err != nil {
			return err
		}
		return withStore(func(st *store.Store) error { return st.Delete(rest[0]) })
	case "serve":
		return serve()
	case "token":
		token, err := auth.GenerateConsoleToken("")
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printError(err error) {
	if be, ok := basic.AsBASICError(err); ok {
		fmt.Fprintln(os.Stderr, be.Report())
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func newInterpreter(opts options, console basic.Console) *basic.Interpreter {
	return basic.New(
		basic.WithConsole(console),
		basic.WithLimits(opts.limits),
		basic.WithSessionID(auth.NewSessionID()),
	)
}

func dumpVariables(opts options, b *basic.Interpreter) {
	if opts.dump {
		godump.Dump(b.Variables())
	}
}

func runFile(opts options, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	b := newInterpreter(opts, basic.NewStdConsole(os.Stdin, out))
	if err := b.LoadProgram(string(src)); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = b.Run(ctx)
	out.Flush()
	dumpVariables(opts, b)
	return err
}

// openStore opens the program store, or returns nil with a warning.
func openStore() *store.Store {
	st, err := store.OpenFromConfig()
	if err != nil {
		logger.StoreError("program store unavailable: %v", err)
		fmt.Fprintf(os.Stderr, "program store unavailable: %v\n", err)
		return nil
	}
	return st
}

func withStore(fn func(*store.Store) error) error {
	st, err := store.OpenFromConfig()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func saveFile(st *store.Store, name, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := st.Save(name, string(src))
	if err != nil {
		return err
	}
	fmt.Printf("saved %s (%d bytes tokenized)\n", p.Name, len(p.Tokens))
	return nil
}

func printSource(st *store.Store, name string) error {
	p, err := st.Load(name)
	if err != nil {
		return err
	}
	fmt.Print(p.Source)
	if !strings.HasSuffix(p.Source, "\n") {
		fmt.Println()
	}
	return nil
}

// printListing shows the stored token stream rendered back as text.
func printListing(st *store.Store, name string) error {
	p, err := st.Load(name)
	if err != nil {
		return err
	}
	b := basic.New()
	if err := b.LoadTokenized(p.Tokens); err != nil {
		return err
	}
	for _, line := range b.List() {
		fmt.Println(line)
	}
	return nil
}

func listPrograms(st *store.Store) error {
	programs, err := st.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tUPDATED")
	for _, p := range programs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, p.Size, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// immediate runs the prompt: liner on a terminal, plain line reads otherwise.
func immediate(opts options) error {
	var ps basic.ProgramStore
	if st := openStore(); st != nil {
		defer st.Close()
		ps = st
	}
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return interactive(opts, ps)
	}
	return batch(opts, ps)
}

func interactive(opts options, ps basic.ProgramStore) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	console := newLineConsole(ln, os.Stdout)
	b := newInterpreter(opts, console)
	shell := basic.NewShell(b, ps)
	fmt.Println(terminal.Banner)

	for {
		line, err := ln.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		console.abort = stop
		quit, err := shell.Handle(ctx, line)
		stop()
		console.flush()
		if err != nil {
			printError(err)
		} else if isRun(line) {
			dumpVariables(opts, b)
		}
		if quit {
			return nil
		}
	}
}

// batch reads prompt lines from a pipe. INPUT shares the same reader.
func batch(opts options, ps basic.ProgramStore) error {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	console := basic.NewStdConsole(os.Stdin, out)
	b := newInterpreter(opts, console)
	shell := basic.NewShell(b, ps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for {
		line, err := console.ReadLine(0)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := shell.Handle(ctx, string(line))
		out.Flush()
		if err != nil {
			printError(err)
			if ctx.Err() != nil {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

func isRun(line string) bool {
	f := strings.Fields(strings.ToUpper(line))
	return len(f) > 0 && f[0] == "RUN"
}

func serve() error {
	var ps basic.ProgramStore
	if st := openStore(); st != nil {
		defer st.Close()
		ps = st
	}
	tm, err := tlsmanager.NewManagerFromConfig()
	if err != nil {
		return err
	}

	handler := terminal.NewHandler(ps)
	addr := configuration.GetString("Console", "listen", "127.0.0.1:8088")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go handler.Run(ctx)

	errc := make(chan error, 2)
	var redirect *http.Server
	if listen := tm.RedirectListen(); listen != "" {
		redirect = &http.Server{
			Addr:              listen,
			Handler:           tm.RedirectHandler(addr),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.TLSInfo("redirect server listening on %s", listen)
			errc <- redirect.ListenAndServe()
		}()
	}
	go func() {
		scheme := "ws"
		if tm.Enabled() {
			scheme = "wss"
		}
		logger.ConsoleInfo("console listening on %s://%s/console", scheme, addr)
		fmt.Printf("console listening on %s://%s/console\n", scheme, addr)
		errc <- tm.ListenAndServe(srv)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.ConsoleInfo("shutting down console server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if redirect != nil {
		redirect.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}
