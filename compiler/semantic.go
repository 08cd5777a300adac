package compiler

import "strings"

// ---------------------------------------------------------------------------
// Semantic Analyzer: Pre-codegen semantic checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer checks a program before code generation and collects
// what the code generator needs to know up front: the signatures of every
// declared function and which scopes need name-keyed variable storage.
type SemanticAnalyzer struct {
	name   string
	errors []*CompileError

	// Declared functions by lowercase name.
	functions map[string]*FunctionDecl

	// Loop nesting of the scope being checked.
	loopDepth int
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer(name string) *SemanticAnalyzer {
	return &SemanticAnalyzer{
		name:      name,
		functions: make(map[string]*FunctionDecl),
	}
}

// Errors returns accumulated semantic errors.
func (a *SemanticAnalyzer) Errors() []*CompileError {
	return a.errors
}

// Functions returns the declared functions by lowercase name.
func (a *SemanticAnalyzer) Functions() map[string]*FunctionDecl {
	return a.functions
}

func (a *SemanticAnalyzer) errorf(n Node, format string, args ...any) {
	a.errors = append(a.errors, newCompileError(a.name, n.Span().Start, format, args...))
}

// Analyze checks the whole program. Functions declared at the top level
// exist before the script runs, so declaring one twice is an error at
// compile time. Conditional declarations are only recorded.
func (a *SemanticAnalyzer) Analyze(prog *Program) {
	for _, s := range prog.Stmts {
		if fn, ok := s.(*FunctionDecl); ok {
			key := strings.ToLower(fn.Name)
			if _, dup := a.functions[key]; dup {
				a.errorf(fn, "Cannot redeclare %s()", fn.Name)
			}
			a.functions[key] = fn
		}
	}
	Walk(prog, func(n Node) bool {
		if fn, ok := n.(*FunctionDecl); ok {
			key := strings.ToLower(fn.Name)
			if _, seen := a.functions[key]; !seen {
				a.functions[key] = fn
			}
		}
		return true
	})
	a.checkStmts(prog.Stmts)
}

// checkStmts validates loop control and assignment targets in one scope.
// Nested functions are checked as scopes of their own.
func (a *SemanticAnalyzer) checkStmts(stmts []Stmt) {
	for _, s := range stmts {
		a.checkStmt(s)
	}
}

func (a *SemanticAnalyzer) checkStmt(s Stmt) {
	switch n := s.(type) {
	case *Block:
		a.checkStmts(n.Stmts)
	case *IfStmt:
		a.checkExpr(n.Cond)
		a.checkStmt(n.Then)
		for _, ei := range n.ElseIfs {
			a.checkExpr(ei.Cond)
			a.checkStmt(ei.Body)
		}
		if n.Else != nil {
			a.checkStmt(n.Else)
		}
	case *WhileStmt:
		a.checkExpr(n.Cond)
		a.checkLoopBody(n.Body)
	case *DoWhileStmt:
		a.checkLoopBody(n.Body)
		a.checkExpr(n.Cond)
	case *ForStmt:
		for _, e := range append(append(append([]Expr{}, n.Init...), n.Cond...), n.Step...) {
			a.checkExpr(e)
		}
		a.checkLoopBody(n.Body)
	case *ForeachStmt:
		a.checkExpr(n.Expr)
		a.checkLoopBody(n.Body)
	case *BreakStmt:
		a.checkLoopControl(n, "break", n.Depth)
	case *ContinueStmt:
		a.checkLoopControl(n, "continue", n.Depth)
	case *FunctionDecl:
		saved := a.loopDepth
		a.loopDepth = 0
		for _, p := range n.Params {
			if p.Default != nil {
				if _, ok := wrap(p.Default); !ok {
					a.errorf(n, "Constant expression contains invalid operations")
				}
			}
		}
		a.checkStmts(n.Body)
		a.loopDepth = saved
	case *StaticStmt:
		for _, v := range n.Vars {
			if v.Init == nil {
				continue
			}
			if _, ok := wrap(v.Init); !ok {
				a.errorf(n, "Constant expression contains invalid operations")
			}
		}
	case *ExprStmt:
		a.checkExpr(n.Expr)
	case *EchoStmt:
		for _, e := range n.Args {
			a.checkExpr(e)
		}
	case *ReturnStmt:
		if n.Value != nil {
			a.checkExpr(n.Value)
		}
	case *UnsetStmt:
		for _, t := range n.Targets {
			if !isTarget(t) {
				a.errorf(t, "Cannot unset the result of an expression")
			}
		}
	}
}

func (a *SemanticAnalyzer) checkLoopBody(body Stmt) {
	a.loopDepth++
	a.checkStmt(body)
	a.loopDepth--
}

func (a *SemanticAnalyzer) checkLoopControl(n Node, keyword string, depth int) {
	switch {
	case a.loopDepth == 0:
		a.errorf(n, "'%s' not in the 'loop' or 'switch' context", keyword)
	case depth > a.loopDepth:
		a.errorf(n, "Cannot '%s' %d levels", keyword, depth)
	}
}

// checkExpr validates the expressions that only some operands allow.
func (a *SemanticAnalyzer) checkExpr(e Expr) {
	Walk(e, func(n Node) bool {
		switch x := n.(type) {
		case *RefAssign:
			if _, ok := x.Source.(*Call); ok {
				a.errorf(x, "Cannot assign the result of a function call by reference")
			} else if !isTarget(x.Source) {
				a.errorf(x, "Cannot assign reference to non referenceable value")
			}
			if isGlobalsVar(x.Target) {
				a.errorf(x, "Cannot re-assign $GLOBALS")
			}
		case *Assign:
			if isGlobalsVar(x.Target) {
				a.errorf(x, "Cannot re-assign $GLOBALS")
			}
		case *Isset:
			for _, arg := range x.Args {
				if !isTarget(arg) {
					a.errorf(arg, "Cannot use isset() on the result of an expression")
				}
			}
		}
		return true
	})
}

func isGlobalsVar(e Expr) bool {
	v, ok := e.(*Variable)
	return ok && v.Name == "GLOBALS"
}

// ---------------------------------------------------------------------------
// Scope analysis
// ---------------------------------------------------------------------------

// needsDict reports whether a scope accesses variables by run-time name:
// through $$name or through $GLOBALS. Nested function bodies are separate
// scopes and are not inspected.
func needsDict(stmts []Stmt) bool {
	found := false
	for _, s := range stmts {
		Walk(s, func(n Node) bool {
			switch x := n.(type) {
			case *FunctionDecl:
				return false
			case *VarVar:
				found = true
			case *Variable:
				if x.Name == "GLOBALS" {
					found = true
				}
			}
			return !found
		})
	}
	return found
}

// ---------------------------------------------------------------------------
// AST traversal
// ---------------------------------------------------------------------------

// Walk calls fn for n and, while fn returns true, for every child of n in
// source order. Function bodies are visited as children of their
// declaration.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	walkExpr := func(e Expr) {
		if e != nil {
			Walk(e, fn)
		}
	}
	walkStmt := func(s Stmt) {
		if s != nil {
			Walk(s, fn)
		}
	}
	switch x := n.(type) {
	case *Program:
		for _, s := range x.Stmts {
			walkStmt(s)
		}
	case *Interpolation:
		for _, p := range x.Parts {
			walkExpr(p)
		}
	case *ArrayLiteral:
		for _, it := range x.Items {
			walkExpr(it.Key)
			walkExpr(it.Value)
		}
	case *VarVar:
		walkExpr(x.Name)
	case *Index:
		walkExpr(x.Base)
		walkExpr(x.Key)
	case *ListExpr:
		for _, it := range x.Items {
			walkExpr(it.Key)
			walkExpr(it.Target)
		}
	case *Assign:
		walkExpr(x.Target)
		walkExpr(x.Value)
	case *RefAssign:
		walkExpr(x.Target)
		walkExpr(x.Source)
	case *CompoundAssign:
		walkExpr(x.Target)
		walkExpr(x.Value)
	case *IncDec:
		walkExpr(x.Target)
	case *BinaryOp:
		walkExpr(x.Left)
		walkExpr(x.Right)
	case *UnaryOp:
		walkExpr(x.Operand)
	case *Cast:
		walkExpr(x.Operand)
	case *Ternary:
		walkExpr(x.Cond)
		walkExpr(x.Then)
		walkExpr(x.Else)
	case *Call:
		walkExpr(x.Callee)
		for _, a := range x.Args {
			walkExpr(a)
		}
	case *Isset:
		for _, a := range x.Args {
			walkExpr(a)
		}
	case *Empty:
		walkExpr(x.Arg)
	case *Print:
		walkExpr(x.Arg)
	case *ExprStmt:
		walkExpr(x.Expr)
	case *EchoStmt:
		for _, a := range x.Args {
			walkExpr(a)
		}
	case *Block:
		for _, s := range x.Stmts {
			walkStmt(s)
		}
	case *IfStmt:
		walkExpr(x.Cond)
		walkStmt(x.Then)
		for _, ei := range x.ElseIfs {
			walkExpr(ei.Cond)
			walkStmt(ei.Body)
		}
		walkStmt(x.Else)
	case *WhileStmt:
		walkExpr(x.Cond)
		walkStmt(x.Body)
	case *DoWhileStmt:
		walkStmt(x.Body)
		walkExpr(x.Cond)
	case *ForStmt:
		for _, e := range x.Init {
			walkExpr(e)
		}
		for _, e := range x.Cond {
			walkExpr(e)
		}
		for _, e := range x.Step {
			walkExpr(e)
		}
		walkStmt(x.Body)
	case *ForeachStmt:
		walkExpr(x.Expr)
		walkExpr(x.Key)
		walkExpr(x.Value)
		walkStmt(x.Body)
	case *ReturnStmt:
		walkExpr(x.Value)
	case *FunctionDecl:
		for _, p := range x.Params {
			walkExpr(p.Default)
		}
		for _, s := range x.Body {
			walkStmt(s)
		}
	case *StaticStmt:
		for _, v := range x.Vars {
			walkExpr(v.Init)
		}
	case *UnsetStmt:
		for _, t := range x.Targets {
			walkExpr(t)
		}
	}
}
