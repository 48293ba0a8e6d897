package funcmgr

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
)

// Manager tracks every function discovered in a program, the dense
// function_id each one was assigned, and the reverse-topological order
// their bodies must be emitted in (spec.md §4.4).
type Manager struct {
	log *diaglog.Logger

	records     []*Record
	roots       []*Record
	byName      map[string]*Record
	nextID      uint16
	anonCounter int
}

// New returns an empty Manager. log may be diaglog.NoOp() in tests.
func New(log *diaglog.Logger) *Manager {
	return &Manager{byName: map[string]*Record{}, nextID: 1, log: log}
}

// Records returns every discovered function, in discovery order.
func (m *Manager) Records() []*Record { return m.records }

// Lookup finds a record by its mangled name, used by the code generator
// to resolve a call site's function_id or to decide between call_fast
// and a patchable address (spec.md §4.6 "Calls").
func (m *Manager) Lookup(name string) (*Record, bool) {
	r, ok := m.byName[name]
	return r, ok
}

// Discover walks the whole program AST (phase 1, spec.md §4.4) and
// registers a Record for every function declaration, function
// expression, arrow function, method, constructor, and operator
// overload, recursing into every child expression so nested function
// literals are captured no matter how deeply they're embedded.
func (m *Manager) Discover(program *ast.Program) {
	for _, s := range program.Body {
		m.discoverStmt(s, nil)
	}
}

func (m *Manager) register(node interface{}, preferredName string, params []ast.Param, ret ast.DataType, body []ast.Stmt, isMethod, isOperator bool) *Record {
	return m.registerInClass(node, preferredName, params, ret, body, isMethod, isOperator, "")
}

func (m *Manager) registerInClass(node interface{}, preferredName string, params []ast.Param, ret ast.DataType, body []ast.Stmt, isMethod, isOperator bool, className string) *Record {
	name := preferredName
	debug := preferredName
	if name == "" {
		m.anonCounter++
		name = fmt.Sprintf("__func_expr_%d", m.anonCounter)
		// A short uuid suffix disambiguates this name in the debug log
		// across separately compiled files; the fast-call path never
		// sees it (SPEC_FULL.md §11.2).
		debug = name + "#" + uuid.NewString()[:8]
	}
	r := &Record{
		Node:               node,
		Name:               name,
		DebugName:          debug,
		Params:             params,
		Ret:                ret,
		Body:               body,
		ParameterCount:     len(params),
		IsMethod:           isMethod,
		IsOperatorOverload: isOperator,
		ClassName:          className,
		FunctionID:         m.nextID,
	}
	m.nextID++
	m.records = append(m.records, r)
	m.byName[r.Name] = r
	if m.log != nil {
		m.log.Stage("funcmgr").WithField("function_id", r.FunctionID).Debugf("registered %s", r.DebugName)
	}
	return r
}

func (m *Manager) attach(current, r *Record) {
	if current != nil {
		current.children = append(current.children, r)
	} else {
		m.roots = append(m.roots, r)
	}
}

func (m *Manager) discoverBody(body []ast.Stmt, current *Record) {
	for _, s := range body {
		m.discoverStmt(s, current)
	}
}

func (m *Manager) discoverStmt(s ast.Stmt, current *Record) {
	switch st := s.(type) {
	case *ast.VarDecl:
		for _, d := range st.Declarators {
			m.discoverExpr(d.Init, current)
		}
	case *ast.FunctionDecl:
		r := m.register(st, st.Name, st.Params, st.Ret, st.Body, false, false)
		m.attach(current, r)
		m.discoverBody(st.Body, r)
	case *ast.ClassDecl:
		m.discoverClass(st, current)
	case *ast.IfStmt:
		m.discoverExpr(st.Cond, current)
		m.discoverBody(st.Then, current)
		m.discoverBody(st.Else, current)
	case *ast.WhileStmt:
		m.discoverExpr(st.Cond, current)
		m.discoverBody(st.Body, current)
	case *ast.ForStmt:
		if st.Init != nil {
			m.discoverStmt(st.Init, current)
		}
		m.discoverExpr(st.Cond, current)
		if st.Post != nil {
			m.discoverStmt(st.Post, current)
		}
		m.discoverBody(st.Body, current)
	case *ast.ForEachStmt:
		m.discoverExpr(st.Iterable, current)
		m.discoverBody(st.Body, current)
	case *ast.SwitchStmt:
		m.discoverExpr(st.Discriminant, current)
		for _, c := range st.Cases {
			for _, v := range c.Values {
				m.discoverExpr(v, current)
			}
			m.discoverBody(c.Body, current)
		}
	case *ast.ReturnStmt:
		m.discoverExpr(st.Value, current)
	case *ast.BlockStmt:
		m.discoverBody(st.Body, current)
	case *ast.ExprStmt:
		m.discoverExpr(st.X, current)
	case *ast.ExportStmt:
		if st.Decl != nil {
			m.discoverStmt(st.Decl, current)
		}
		m.discoverExpr(st.Default, current)
	case *ast.ImportStmt, *ast.BreakStmt:
	}
}

func (m *Manager) discoverClass(st *ast.ClassDecl, current *Record) {
	if st.Constructor != nil {
		r := m.registerInClass(st.Constructor, st.Name+".constructor", st.Constructor.Params, ast.Void, st.Constructor.Body, true, false, st.Name)
		m.attach(current, r)
		m.discoverBody(st.Constructor.Body, r)
	}
	for _, meth := range st.Methods {
		r := m.registerInClass(meth, st.Name+"."+meth.Name, meth.Params, meth.Ret, meth.Body, true, false, st.Name)
		m.attach(current, r)
		m.discoverBody(meth.Body, r)
	}
	for _, op := range st.Operators {
		r := m.registerInClass(op, mangleOperatorName(st.Name, op.Operator, op.Params), op.Params, op.Ret, op.Body, true, true, st.Name)
		m.attach(current, r)
		m.discoverBody(op.Body, r)
	}
}

// MangleOperatorName builds the mangled name for an operator overload:
// class, operator kind, and parameter-type signature, so overloads of
// the same operator with different argument types never collide
// (spec.md §4.6 "Classes": "operator overloads as mangled functions").
// internal/classes calls this directly rather than re-deriving the
// parameter-type-tuple key, so a class's operator registry and its
// compiled function's mangled name can never drift apart.
func MangleOperatorName(className, operator string, params []ast.Param) string {
	sig := make([]string, len(params))
	for i, p := range params {
		sig[i] = p.Type.String()
	}
	return fmt.Sprintf("%s.operator%s_%s", className, OperatorTag(operator), strings.Join(sig, "_"))
}

func mangleOperatorName(className, operator string, params []ast.Param) string {
	return MangleOperatorName(className, operator, params)
}

// OperatorTag maps a surface operator token ("+", "==", ...) to the
// short identifier-safe tag used inside a mangled operator-overload
// name.
func OperatorTag(op string) string {
	switch op {
	case "+":
		return "Add"
	case "-":
		return "Sub"
	case "*":
		return "Mul"
	case "/":
		return "Div"
	case "==":
		return "Eq"
	case "!=":
		return "Ne"
	case "<":
		return "Lt"
	case "<=":
		return "Le"
	case ">":
		return "Gt"
	case ">=":
		return "Ge"
	default:
		return "Op"
	}
}

func (m *Manager) discoverExpr(e ast.Expr, current *Record) {
	if e == nil {
		return
	}
	switch x := e.(type) {
	case *ast.FunctionExpr:
		r := m.register(x, x.Name, x.Params, x.Ret, x.Body, false, false)
		m.attach(current, r)
		m.discoverBody(x.Body, r)
	case *ast.ArrowFunction:
		r := m.register(x, "", x.Params, x.Ret, x.Body, false, false)
		m.attach(current, r)
		if x.ExprBody != nil {
			m.discoverExpr(x.ExprBody, r)
		} else {
			m.discoverBody(x.Body, r)
		}
	case *ast.BinaryOp:
		m.discoverExpr(x.Left, current)
		m.discoverExpr(x.Right, current)
	case *ast.UnaryOp:
		m.discoverExpr(x.Operand, current)
	case *ast.Ternary:
		m.discoverExpr(x.Cond, current)
		m.discoverExpr(x.Then, current)
		m.discoverExpr(x.Else, current)
	case *ast.Assignment:
		m.discoverExpr(x.Target, current)
		m.discoverExpr(x.Value, current)
	case *ast.PostfixIncDec:
		m.discoverExpr(x.Operand, current)
	case *ast.PropertyAccess:
		m.discoverExpr(x.Object, current)
	case *ast.ComputedPropertyAccess:
		m.discoverExpr(x.Object, current)
		m.discoverExpr(x.Key, current)
	case *ast.PropertyAssignment:
		m.discoverExpr(x.Object, current)
		m.discoverExpr(x.Key, current)
		m.discoverExpr(x.Value, current)
	case *ast.ArrayAccess:
		m.discoverExpr(x.Array, current)
		m.discoverExpr(x.Index, current)
	case *ast.SliceExpr:
		m.discoverExpr(x.Array, current)
		m.discoverExpr(x.Lo, current)
		m.discoverExpr(x.Hi, current)
	case *ast.ArrayLit:
		for _, el := range x.Elements {
			m.discoverExpr(el, current)
		}
	case *ast.ObjectLit:
		for _, p := range x.Properties {
			m.discoverExpr(p.Value, current)
		}
	case *ast.TypedArrayLit:
		for _, el := range x.Elements {
			m.discoverExpr(el, current)
		}
	case *ast.TemplateLit:
		for _, p := range x.Parts {
			m.discoverExpr(p, current)
		}
	case *ast.Call:
		m.discoverExpr(x.Callee, current)
		for _, a := range x.Args {
			m.discoverExpr(a, current)
		}
	case *ast.MethodCall:
		m.discoverExpr(x.Object, current)
		for _, a := range x.Args {
			m.discoverExpr(a, current)
		}
	case *ast.ComputedMethodCall:
		m.discoverExpr(x.Object, current)
		m.discoverExpr(x.Name, current)
		for _, a := range x.Args {
			m.discoverExpr(a, current)
		}
	case *ast.NewExpr:
		for _, a := range x.Args {
			m.discoverExpr(a, current)
		}
		for _, kv := range x.DartArgs {
			m.discoverExpr(kv.Value, current)
		}
	case *ast.SuperCall:
		for _, a := range x.Args {
			m.discoverExpr(a, current)
		}
	case *ast.SuperMethodCall:
		for _, a := range x.Args {
			m.discoverExpr(a, current)
		}
	case *ast.OperatorCall:
		m.discoverExpr(x.Left, current)
		m.discoverExpr(x.Right, current)
	case *ast.GoExpr:
		m.discoverExpr(x.Call, current)
	case *ast.AwaitExpr:
		m.discoverExpr(x.Target, current)
	}
}

// CompileOrder returns every discovered function in reverse-topological
// order (phase 2, spec.md §4.4): a function literal nested lexically
// inside another is always visited, and thus compiled, before the
// function that contains it.
func (m *Manager) CompileOrder() []*Record {
	visited := make(map[*Record]bool, len(m.records))
	order := make([]*Record, 0, len(m.records))
	var visit func(r *Record)
	visit = func(r *Record) {
		if visited[r] {
			return
		}
		visited[r] = true
		for _, c := range r.children {
			visit(c)
		}
		order = append(order, r)
	}
	for _, r := range m.roots {
		visit(r)
	}
	return order
}

// Compile runs CompileOrder and invokes emit once per function,
// threading the running code offset through and stamping the returned
// size back onto the Record (phase 2 step "record the current code
// offset ... emit prologue/body/epilogue, record code_size").
func (m *Manager) Compile(emit func(r *Record) (size int, err error)) error {
	offset := 0
	for _, r := range m.CompileOrder() {
		r.CodeOffset = offset
		size, err := emit(r)
		if err != nil {
			return err
		}
		r.CodeSize = size
		offset += size
	}
	return nil
}

// AssignAddresses implements phase 3: once the loader has mapped the
// executable region at base, every record's machine address becomes
// base+code_offset, and the function_id table below becomes a dense
// O(1) lookup from id to address for the fast-call path.
func (m *Manager) AssignAddresses(base uint64) map[uint16]uint64 {
	table := make(map[uint16]uint64, len(m.records))
	for _, r := range m.records {
		r.MachineAddress = base + uint64(r.CodeOffset)
		table[r.FunctionID] = r.MachineAddress
	}
	return table
}
