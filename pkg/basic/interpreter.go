package basic

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// Limits bounds the resources one interpreter may use.
type Limits struct {
	MaxVariables     int
	MaxCallDepth     int
	MaxGosubDepth    int
	MaxForLoops      int
	MaxDoLoops       int
	MaxExprDepth     int
	MaxArrayElements int
	ScratchSize      int // bytes
	DefaultType      VarType
	OptionBase       int
	Trace            bool
}

// DefaultLimits returns the limits used when no configuration is loaded.
func DefaultLimits() Limits {
	return Limits{
		MaxVariables:     512,
		MaxCallDepth:     50,
		MaxGosubDepth:    100,
		MaxForLoops:      20,
		MaxDoLoops:       20,
		MaxExprDepth:     100,
		MaxArrayElements: 1 << 20,
		ScratchSize:      64 * 1024,
		DefaultType:      TypeFloat,
	}
}

// returnEntry is one return-stack frame.
type returnEntry struct {
	resume int    // statement to continue with, unwindSentinel for nested invocations
	caller int    // active statement of the caller
	level  int    // local level owned by the frame
	proc   string // SUB/FUNCTION name, empty for GOSUB
}

const unwindSentinel = -1

// forEntry is one active FOR loop.
type forEntry struct {
	slot  slot
	name  string
	kind  VarType
	level int
	pos   int // FOR statement
	body  int // first statement of the body
	limit Value
	step  Value
}

// doEntry is one active DO or WHILE loop.
type doEntry struct {
	pos   int // DO / WHILE statement
	body  int
	cond  int // position of the entry condition, -1 when none
	until bool
	level int
	wend  bool
}

// Interpreter holds all state of one BASIC runtime. It is not safe for
// concurrent use except for Stop.
type Interpreter struct {
	mu        sync.Mutex
	sessionID string
	limits    Limits
	console   Console
	interrupt InterruptSource
	cancel    context.CancelFunc
	running   bool

	// program memory: [main 00 00][library 00 00][immediate 00 00]
	mem       []byte
	progEnd   int
	libStart  int
	libEnd    int
	immStart  int
	index     *lineIndex
	defs      []*procDef
	lineCache map[int]bool

	vars       []*Variable
	varCount   int
	varSeq     uint64
	localIndex int

	returnStack []returnEntry
	forStack    []forEntry
	doStack     []doEntry

	ctx       context.Context
	curStmt   int
	nextStmt  int
	exprDepth int
	scratch   scratch

	optionBase     int
	optionExplicit bool
	defaultType    VarType
	errSkip        int // >0 failing statements left to skip, -1 ignore all
	errNo          int
	errMsg         string
	lastErr        *BASICError
	trace          bool
	traceLine      int
	inInterrupt    bool

	dataPos  int // DATA statement being read, -1 when none
	dataItem int // next item of dataPos
	dataFrom int // where the search for the next DATA statement starts
	rng      *rand.Rand
	lastRnd  float64
	started  time.Time
	column   map[int]int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithConsole sets the character I/O device.
func WithConsole(c Console) Option {
	return func(b *Interpreter) { b.console = c }
}

// WithLimits replaces the resource limits.
func WithLimits(l Limits) Option {
	return func(b *Interpreter) { b.limits = l }
}

// WithInterruptSource sets the source polled for interrupts.
func WithInterruptSource(s InterruptSource) Option {
	return func(b *Interpreter) { b.interrupt = s }
}

// WithSessionID sets the identifier used in logs.
func WithSessionID(id string) Option {
	return func(b *Interpreter) { b.sessionID = id }
}

// New creates an interpreter with an empty program.
func New(opts ...Option) *Interpreter {
	b := &Interpreter{
		limits:    DefaultLimits(),
		sessionID: uuid.New().String(),
		column:    make(map[int]int),
		lineCache: make(map[int]bool),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.scratch = newScratch(b.limits.ScratchSize)
	b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	b.setProgram([]byte{0, 0}, []byte{0, 0})
	b.resetRuntime()
	return b
}

// SessionID returns the interpreter's session identifier.
func (b *Interpreter) SessionID() string { return b.sessionID }

// SetConsole replaces the character I/O device.
func (b *Interpreter) SetConsole(c Console) { b.console = c }

// SetInterruptSource replaces the interrupt source.
func (b *Interpreter) SetInterruptSource(s InterruptSource) { b.interrupt = s }

// LastError returns the last error raised, nil when none.
func (b *Interpreter) LastError() *BASICError { return b.lastErr }

// IsRunning reports whether Run or Execute is active.
func (b *Interpreter) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stop cancels the active Run or Execute; the engine reports BREAK at the
// next statement.
func (b *Interpreter) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// tokenizeSource tokenizes a multi-line source into a region ending in 00 00.
// Line numbers, where present, must ascend.
func tokenizeSource(src string) ([]byte, error) {
	var out []byte
	last := 0
	for i, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tok, err := Tokenize(line, true)
		if err != nil {
			if be, ok := AsBASICError(err); ok {
				be.SourceLine = i + 1
				be.Line = line
				be.located = true
			}
			return nil, err
		}
		if n := lineNumberOf(tok, 0); n > 0 {
			if n <= last {
				be := newError(ErrCategorySyntax, "LINE_ORDER", n)
				be.SourceLine, be.Line, be.located = i+1, line, true
				return nil, be
			}
			last = n
		}
		out = append(out, tok[:len(tok)-2]...)
	}
	return append(out, 0, 0), nil
}

// LoadProgram tokenizes and installs a program, clearing all variables.
func (b *Interpreter) LoadProgram(src string) error {
	prog, err := tokenizeSource(src)
	if err != nil {
		logger.Warn(logger.AreaProgram, "[%s] load failed: %v", b.sessionID, err)
		return err
	}
	return b.install(prog, b.mem[b.libStart:b.libEnd])
}

// LoadLibrary tokenizes and installs the library region.
func (b *Interpreter) LoadLibrary(src string) error {
	lib, err := tokenizeSource(src)
	if err != nil {
		return err
	}
	return b.install(b.mem[:b.progEnd], lib)
}

// LoadTokenized installs a program already in the persisted token layout.
func (b *Interpreter) LoadTokenized(prog []byte) error {
	n, err := validateProgram(prog)
	if err != nil {
		return err
	}
	return b.install(prog[:n], b.mem[b.libStart:b.libEnd])
}

// install copies both regions into memory and rebuilds the load-time tables.
func (b *Interpreter) install(prog, lib []byte) error {
	prog = append([]byte(nil), prog...)
	lib = append([]byte(nil), lib...)
	saveMem, saveProg, saveLib, saveLibEnd, saveImm := b.mem, b.progEnd, b.libStart, b.libEnd, b.immStart
	b.setProgram(prog, lib)
	if err := b.buildDefinitions(); err != nil {
		b.mem, b.progEnd, b.libStart, b.libEnd, b.immStart = saveMem, saveProg, saveLib, saveLibEnd, saveImm
		b.index = buildLineIndex(b.mem, 0)
		_ = b.buildDefinitions()
		return err
	}
	b.resetRuntime()
	logger.Info(logger.AreaProgram, "[%s] program loaded: %d bytes, %d lines indexed, %d definitions",
		b.sessionID, b.progEnd, b.index.Len(), len(b.defs))
	return nil
}

// setProgram lays out memory from the program and library regions.
func (b *Interpreter) setProgram(prog, lib []byte) {
	mem := make([]byte, 0, len(prog)+len(lib)+MaxLineLength+8)
	mem = append(mem, prog...)
	b.progEnd = len(mem)
	b.libStart = len(mem)
	if len(lib) > 2 {
		mem = append(mem, lib...)
	}
	b.libEnd = len(mem)
	b.immStart = len(mem)
	b.mem = append(mem, 0, 0)
	b.index = buildLineIndex(b.mem, 0)
	b.lineCache = make(map[int]bool)
}

// Program returns a copy of the main program in the persisted layout.
func (b *Interpreter) Program() []byte {
	return append([]byte(nil), b.mem[:b.progEnd]...)
}

// List renders the main program, one string per line.
func (b *Interpreter) List() []string {
	var out []string
	lines(b.mem, 0, func(line int) bool {
		s, _ := detokenizeLine(b.mem, line)
		out = append(out, s)
		return true
	})
	return out
}

// resetRuntime discards variables, stacks and options.
func (b *Interpreter) resetRuntime() {
	b.clearVars(0)
	b.varSeq = 0
	b.localIndex = 0
	b.returnStack = b.returnStack[:0]
	b.forStack = b.forStack[:0]
	b.doStack = b.doStack[:0]
	b.optionBase = b.limits.OptionBase
	b.optionExplicit = false
	b.defaultType = b.limits.DefaultType
	b.errSkip = 0
	b.errNo = 0
	b.errMsg = ""
	b.trace = b.limits.Trace
	b.dataPos = -1
	b.dataItem = 0
	b.dataFrom = 0
	b.scratch.top = 0
}

// abandon drops the state of an aborted run.
func (b *Interpreter) abandon() {
	b.clearVars(1)
	b.localIndex = 0
	b.returnStack = b.returnStack[:0]
	b.forStack = b.forStack[:0]
	b.doStack = b.doStack[:0]
	b.scratch.top = 0
	b.exprDepth = 0
	b.inInterrupt = false
}

// begin marks the interpreter running and derives a cancellable context.
func (b *Interpreter) begin(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrProgramRunning
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	return nil
}

func (b *Interpreter) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.cancel = nil
	b.running = false
}

// Run executes the main program from its first line with fresh variables.
func (b *Interpreter) Run(ctx context.Context) error {
	if err := b.begin(ctx); err != nil {
		return err
	}
	defer b.end()
	b.resetRuntime()
	logger.Info(logger.AreaExecution, "[%s] RUN", b.sessionID)
	return b.finish(b.execute(0, false))
}

// Execute tokenizes and runs one immediate-mode line against the current
// program and variables.
func (b *Interpreter) Execute(ctx context.Context, line string) error {
	tok, err := Tokenize(line, false)
	if err != nil {
		if be, ok := AsBASICError(err); ok {
			be.Immediate, be.Line, be.located = true, line, true
			b.recordError(be)
		}
		return err
	}
	if err := b.begin(ctx); err != nil {
		return err
	}
	defer b.end()
	b.mem = append(b.mem[:b.immStart], tok...)
	for k := range b.lineCache {
		if k >= b.immStart {
			delete(b.lineCache, k)
		}
	}
	err = b.finish(b.execute(b.immStart, false))
	b.returnStack = b.returnStack[:0]
	b.forStack = b.forStack[:0]
	b.doStack = b.doStack[:0]
	return err
}

// Evaluate evaluates a single expression in the current variable scope.
func (b *Interpreter) Evaluate(expr string) (Value, error) {
	tok, err := Tokenize("PRINT "+expr, false)
	if err != nil {
		return Value{}, err
	}
	b.mem = append(b.mem[:b.immStart], tok...)
	mark := b.scratch.top
	defer func() { b.scratch.top = mark }()
	v, q, err := b.evaluate(b.immStart+2, TypeAny)
	if err != nil {
		return Value{}, err
	}
	if q = b.skipSpace(q); b.mem[q] != 0 {
		return Value{}, newError(ErrCategorySyntax, "UNEXPECTED_TEXT", string(b.mem[q:statementEnd(b.mem, q)]))
	}
	if v.Type == TypeString {
		v.S = append([]byte(nil), v.S...)
	}
	return v, nil
}

// finish converts an engine result into the value returned to the host.
func (b *Interpreter) finish(err error) error {
	if err == nil || errors.Is(err, errEnd) {
		b.abandon()
		return nil
	}
	b.abandon()
	if be, ok := AsBASICError(err); ok {
		logger.Warn(logger.AreaExecution, "[%s] aborted: %s", b.sessionID, be.Error())
	}
	return err
}

// locate attaches the failing statement's position to err.
func (b *Interpreter) locate(err error, s int) *BASICError {
	be, ok := AsBASICError(err)
	if !ok {
		be = newError(ErrCategoryResource, err.Error())
	}
	if be.located {
		return be
	}
	be.located = true
	switch {
	case s >= b.immStart:
		be.Immediate = true
		be.Line, _ = detokenizeLine(b.mem, b.immStart)
	case s >= b.libStart && b.libEnd > b.libStart:
		be.Library = true
		be.Line, _ = detokenizeLine(b.mem, lineStart(b.mem, b.libStart, s))
	default:
		ls := lineStart(b.mem, 0, s)
		be.LineNumber = lineNumberOf(b.mem, ls)
		be.SourceLine = countLines(b.mem, 0, s)
		be.Line, _ = detokenizeLine(b.mem, ls)
	}
	return be
}

// recordError updates MM.ERRNO and MM.ERRMSG$.
func (b *Interpreter) recordError(be *BASICError) {
	b.lastErr = be
	b.errNo = be.Number
	b.errMsg = be.Message
}

// regionStart returns the start of the memory region containing p.
func (b *Interpreter) regionStart(p int) int {
	switch {
	case p >= b.immStart:
		return b.immStart
	case p >= b.libStart && b.libEnd > b.libStart:
		return b.libStart
	}
	return 0
}
