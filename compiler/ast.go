package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for the PHP subset
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes. compile emits code that
// leaves the expression's value on the operand stack.
type Expr interface {
	Node
	compile(c *Compiler)
}

// Stmt is the interface for statement nodes. compile emits code that
// leaves the operand stack as it found it.
type Stmt interface {
	Node
	compile(c *Compiler)
}

// Program is a parsed source file.
type Program struct {
	Name   string // unit name, usually the file name
	Source string
	Stmts  []Stmt
}

// Span covers the statements of the program.
func (p *Program) Span() Span {
	if len(p.Stmts) == 0 {
		return Span{}
	}
	return Span{Start: p.Stmts[0].Span().Start, End: p.Stmts[len(p.Stmts)-1].Span().End}
}
func (p *Program) node() {}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}

// StringLiteral represents a string literal with escapes decoded.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}

// Interpolation is a double-quoted string with embedded expressions.
type Interpolation struct {
	SpanVal Span
	Parts   []Expr
}

func (n *Interpolation) Span() Span { return n.SpanVal }
func (n *Interpolation) node()      {}

// ConstFetch is a bare name: true, false, null or a define()d constant.
type ConstFetch struct {
	SpanVal Span
	Name    string
}

func (n *ConstFetch) Span() Span { return n.SpanVal }
func (n *ConstFetch) node()      {}

// ArrayItem is one entry of an array literal.
type ArrayItem struct {
	Key   Expr // nil for auto-indexed entries
	Value Expr
	ByRef bool
}

// ArrayLiteral represents array(...) and [...].
type ArrayLiteral struct {
	SpanVal Span
	Items   []ArrayItem
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// Variable represents $name.
type Variable struct {
	SpanVal Span
	Name    string
}

func (n *Variable) Span() Span { return n.SpanVal }
func (n *Variable) node()      {}

// VarVar represents $$name and ${expr}.
type VarVar struct {
	SpanVal Span
	Name    Expr
}

func (n *VarVar) Span() Span { return n.SpanVal }
func (n *VarVar) node()      {}

// Index represents $base[key]; Key is nil for $base[].
type Index struct {
	SpanVal Span
	Base    Expr
	Key     Expr
}

func (n *Index) Span() Span { return n.SpanVal }
func (n *Index) node()      {}

// ListItem is one target of a list() destructuring.
type ListItem struct {
	Key    Expr // nil for positional items
	Target Expr // nil for skipped positions
}

// ListExpr represents list(...) as an assignment target.
type ListExpr struct {
	SpanVal Span
	Items   []ListItem
}

func (n *ListExpr) Span() Span { return n.SpanVal }
func (n *ListExpr) node()      {}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// Assign represents target = value.
type Assign struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}

// RefAssign represents target = &source.
type RefAssign struct {
	SpanVal Span
	Target  Expr
	Source  Expr
}

func (n *RefAssign) Span() Span { return n.SpanVal }
func (n *RefAssign) node()      {}

// CompoundAssign represents target op= value.
type CompoundAssign struct {
	SpanVal Span
	Op      TokenType // the binary operator, e.g. TokenPlus for +=
	Target  Expr
	Value   Expr
}

func (n *CompoundAssign) Span() Span { return n.SpanVal }
func (n *CompoundAssign) node()      {}

// IncDec represents ++$x, $x++, --$x and $x--.
type IncDec struct {
	SpanVal Span
	Target  Expr
	Inc     bool
	Prefix  bool
}

func (n *IncDec) Span() Span { return n.SpanVal }
func (n *IncDec) node()      {}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOp represents left op right, including the short-circuit and
// coalescing operators.
type BinaryOp struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryOp) Span() Span { return n.SpanVal }
func (n *BinaryOp) node()      {}

// UnaryOp represents -x, +x, !x, ~x and @x.
type UnaryOp struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryOp) Span() Span { return n.SpanVal }
func (n *UnaryOp) node()      {}

// Cast represents (type) x.
type Cast struct {
	SpanVal Span
	Type    string // int, float, string, bool, array or unset
	Operand Expr
}

func (n *Cast) Span() Span { return n.SpanVal }
func (n *Cast) node()      {}

// Ternary represents cond ? then : else; Then is nil for cond ?: else.
type Ternary struct {
	SpanVal Span
	Cond    Expr
	Then    Expr
	Else    Expr
}

func (n *Ternary) Span() Span { return n.SpanVal }
func (n *Ternary) node()      {}

// ---------------------------------------------------------------------------
// Calls and language constructs
// ---------------------------------------------------------------------------

// Call represents name(args) or $callee(args).
type Call struct {
	SpanVal Span
	Name    string // empty when Callee is set
	Callee  Expr
	Args    []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}

// Isset represents isset(a, b, ...).
type Isset struct {
	SpanVal Span
	Args    []Expr
}

func (n *Isset) Span() Span { return n.SpanVal }
func (n *Isset) node()      {}

// Empty represents empty(x).
type Empty struct {
	SpanVal Span
	Arg     Expr
}

func (n *Empty) Span() Span { return n.SpanVal }
func (n *Empty) node()      {}

// Print represents print x, which echoes and evaluates to 1.
type Print struct {
	SpanVal Span
	Arg     Expr
}

func (n *Print) Span() Span { return n.SpanVal }
func (n *Print) node()      {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ExprStmt is an expression evaluated for its effects.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}

// EchoStmt represents echo a, b, ...
type EchoStmt struct {
	SpanVal Span
	Args    []Expr
}

func (n *EchoStmt) Span() Span { return n.SpanVal }
func (n *EchoStmt) node()      {}

// InlineHTML is text outside the code tags.
type InlineHTML struct {
	SpanVal Span
	Text    string
}

func (n *InlineHTML) Span() Span { return n.SpanVal }
func (n *InlineHTML) node()      {}

// Block is a braced statement list.
type Block struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}

// ElseIf is one elseif clause.
type ElseIf struct {
	Cond Expr
	Body Stmt
}

// IfStmt represents if/elseif/else.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    Stmt
	ElseIfs []ElseIf
	Else    Stmt // may be nil
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}

// WhileStmt represents while (cond) body.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}

// DoWhileStmt represents do body while (cond).
type DoWhileStmt struct {
	SpanVal Span
	Body    Stmt
	Cond    Expr
}

func (n *DoWhileStmt) Span() Span { return n.SpanVal }
func (n *DoWhileStmt) node()      {}

// ForStmt represents for (init; cond; step) body. The value of a
// comma-separated condition list is its last expression.
type ForStmt struct {
	SpanVal Span
	Init    []Expr
	Cond    []Expr
	Step    []Expr
	Body    Stmt
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}

// ForeachStmt represents foreach (expr as [key =>] [&]value) body.
type ForeachStmt struct {
	SpanVal Span
	Expr    Expr
	Key     Expr // may be nil
	Value   Expr
	ByRef   bool
	Body    Stmt
}

func (n *ForeachStmt) Span() Span { return n.SpanVal }
func (n *ForeachStmt) node()      {}

// BreakStmt represents break N.
type BreakStmt struct {
	SpanVal Span
	Depth   int
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}

// ContinueStmt represents continue N.
type ContinueStmt struct {
	SpanVal Span
	Depth   int
}

func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}

// ReturnStmt represents return [value].
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // may be nil
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}

// ParamDecl is one formal parameter.
type ParamDecl struct {
	Name    string
	ByRef   bool
	Default Expr // may be nil
}

// FunctionDecl represents function [&]name(params) { body }.
type FunctionDecl struct {
	SpanVal     Span
	Name        string
	Params      []ParamDecl
	Body        []Stmt
	ReturnByRef bool
}

func (n *FunctionDecl) Span() Span { return n.SpanVal }
func (n *FunctionDecl) node()      {}

// GlobalStmt represents global $a, $b.
type GlobalStmt struct {
	SpanVal Span
	Names   []string
}

func (n *GlobalStmt) Span() Span { return n.SpanVal }
func (n *GlobalStmt) node()      {}

// StaticVar is one variable of a static declaration.
type StaticVar struct {
	Name string
	Init Expr // may be nil
}

// StaticStmt represents static $a = 1, $b.
type StaticStmt struct {
	SpanVal Span
	Vars    []StaticVar
}

func (n *StaticStmt) Span() Span { return n.SpanVal }
func (n *StaticStmt) node()      {}

// UnsetStmt represents unset($a, $b[1]).
type UnsetStmt struct {
	SpanVal Span
	Targets []Expr
}

func (n *UnsetStmt) Span() Span { return n.SpanVal }
func (n *UnsetStmt) node()      {}
