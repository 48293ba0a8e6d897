// Package parser implements the hand-written Pratt-style recursive
// descent parser described in spec.md §4.2: it turns a lexer.Token
// stream into an *ast.Program. Scope tracking (enter_scope /
// declare_variable / register_function_in_current_scope / exit_scope in
// the original design) is realized as the internal/scope package's two
// pass analyzer, run by the driver immediately after Parse returns,
// rather than interleaved token-by-token here — see DESIGN.md.
package parser

import (
	"strconv"
	"strings"

	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/lexer"
)

// Parser consumes a fixed token slice produced by lexer.Tokenize.
type Parser struct {
	file string
	toks []lexer.Token
	pos  int
}

// New wraps an already-lexed token stream.
func New(file string, toks []lexer.Token) *Parser {
	return &Parser{file: file, toks: toks}
}

// Parse lexes and parses source in one step, the form most callers want.
func Parse(file, source string) (*ast.Program, error) {
	toks, err := lexer.New(file, source).Tokenize()
	if err != nil {
		return nil, err
	}
	return New(file, toks).ParseProgram()
}

// ParseProgram consumes every statement up to eof.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	var body []ast.Stmt
	for !p.at(lexer.EOF) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	return &ast.Program{Body: body}, nil
}

// --- token helpers ---

func (p *Parser) cur() lexer.Token { return p.toks[p.pos] }

func (p *Parser) at(k lexer.Kind) bool { return p.cur().Kind == k }

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) pos0() diag.Position {
	t := p.cur()
	return diag.Position{File: p.file, Line: t.Line, Column: t.Column}
}

func (p *Parser) expect(k lexer.Kind) (lexer.Token, error) {
	if !p.at(k) {
		return lexer.Token{}, diag.ParseError(p.pos0(), "expected %s, got %s %q", k, p.cur().Kind, p.cur().Lexeme)
	}
	return p.advance(), nil
}

// --- statements ---

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.cur().Kind {
	case lexer.Var, lexer.Let, lexer.Const:
		return p.parseVarDeclStmt(true)
	case lexer.Function:
		return p.parseFunctionDecl()
	case lexer.Class:
		return p.parseClassDecl()
	case lexer.If:
		return p.parseIf()
	case lexer.For:
		return p.parseFor()
	case lexer.While:
		return p.parseWhile()
	case lexer.Switch:
		return p.parseSwitch()
	case lexer.Return:
		return p.parseReturn()
	case lexer.Break:
		return p.parseBreak()
	case lexer.Import:
		return p.parseImport()
	case lexer.Export:
		return p.parseExport()
	case lexer.LBrace:
		return p.parseBlock()
	default:
		return p.parseExprStmt()
	}
}

func declKindOf(k lexer.Kind) ast.DeclarationKind {
	switch k {
	case lexer.Var:
		return ast.DeclVar
	case lexer.Const:
		return ast.DeclConst
	default:
		return ast.DeclLet
	}
}

// parseVarDeclStmt parses `var|let|const name[: type][= init][, ...]`.
// consumeSemi is false inside a C-style for's init clause.
func (p *Parser) parseVarDeclStmt(consumeSemi bool) (*ast.VarDecl, error) {
	pos := p.pos0()
	kind := declKindOf(p.advance().Kind)
	var decls []ast.Declarator
	for {
		nameTok, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		typ, className := ast.Any, ""
		if p.at(lexer.Colon) {
			p.advance()
			typ, className, err = p.parseTypeAnnotation()
			if err != nil {
				return nil, err
			}
		}
		var init ast.Expr
		if p.at(lexer.Assign) {
			p.advance()
			init, err = p.parseAssignment()
			if err != nil {
				return nil, err
			}
		}
		decls = append(decls, ast.Declarator{Name: nameTok.Lexeme, Type: typ, ClassName: className, Init: init})
		if p.at(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	if consumeSemi {
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
	}
	return &ast.VarDecl{StmtBase: ast.NewStmtBase(pos), Kind: kind, Declarators: decls}, nil
}

var typeNames = map[string]ast.DataType{
	"any": ast.Any, "unknown": ast.Any, "void": ast.Void,
	"int8": ast.Int8, "int16": ast.Int16, "int32": ast.Int32, "int64": ast.Int64,
	"uint8": ast.Uint8, "uint16": ast.Uint16, "uint32": ast.Uint32, "uint64": ast.Uint64,
	"float32": ast.Float32, "float64": ast.Float64, "number": ast.Float64,
	"boolean": ast.Boolean, "bool": ast.Boolean,
	"string": ast.StringType, "regex": ast.RegexType,
	"tensor": ast.TensorType, "promise": ast.PromiseType, "function": ast.FunctionType,
	"slice": ast.SliceType, "array": ast.ArrayType,
}

// parseTypeAnnotation consumes a type name after a `:` and resolves it
// to a DataType; an unrecognized name is treated as a class_instance
// annotation (spec.md §3: class_instance carries a companion class-name
// string).
func (p *Parser) parseTypeAnnotation() (ast.DataType, string, error) {
	tok, err := p.expect(lexer.Identifier)
	if err != nil {
		if p.at(lexer.Tensor) {
			p.advance()
			return ast.TensorType, "", nil
		}
		return ast.Any, "", err
	}
	if dt, ok := typeNames[tok.Lexeme]; ok {
		return dt, "", nil
	}
	return ast.ClassInstance, tok.Lexeme, nil
}

func (p *Parser) parseFunctionDecl() (*ast.FunctionDecl, error) {
	pos := p.pos0()
	if _, err := p.expect(lexer.Function); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	ret, err := p.parseOptionalReturnType()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockStmts()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{StmtBase: ast.NewStmtBase(pos), Name: name.Lexeme, Params: params, Ret: ret, Body: body}, nil
}

func (p *Parser) parseOptionalReturnType() (ast.DataType, error) {
	if !p.at(lexer.Colon) {
		return ast.Any, nil
	}
	p.advance()
	dt, _, err := p.parseTypeAnnotation()
	return dt, err
}

func (p *Parser) parseParamList() ([]ast.Param, error) {
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.at(lexer.RParen) {
		name, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		typ, className := ast.Any, ""
		if p.at(lexer.Colon) {
			p.advance()
			typ, className, err = p.parseTypeAnnotation()
			if err != nil {
				return nil, err
			}
		}
		var def ast.Expr
		if p.at(lexer.Assign) {
			p.advance()
			def, err = p.parseAssignment()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, ast.Param{Name: name.Lexeme, Type: typ, ClassName: className, Default: def})
		if p.at(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseBlockStmts() ([]ast.Stmt, error) {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var body []ast.Stmt
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseBlock() (*ast.BlockStmt, error) {
	pos := p.pos0()
	body, err := p.parseBlockStmts()
	if err != nil {
		return nil, err
	}
	return &ast.BlockStmt{StmtBase: ast.NewStmtBase(pos), Body: body}, nil
}

// parseBlockOrSingleStmt covers the bodies of if/while/for, which may be
// a `{ ... }` block or a single bare statement.
func (p *Parser) parseBlockOrSingleStmt() ([]ast.Stmt, error) {
	if p.at(lexer.LBrace) {
		return p.parseBlockStmts()
	}
	s, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return []ast.Stmt{s}, nil
}

func (p *Parser) parseClassDecl() (*ast.ClassDecl, error) {
	pos := p.pos0()
	if _, err := p.expect(lexer.Class); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	parent := ""
	if p.at(lexer.Extends) {
		p.advance()
		pt, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		parent = pt.Lexeme
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}

	decl := &ast.ClassDecl{StmtBase: ast.NewStmtBase(pos), Name: name.Lexeme, Parent: parent}
	for !p.at(lexer.RBrace) {
		access := ""
		if p.at(lexer.Public) || p.at(lexer.Private) || p.at(lexer.Protected) {
			access = p.advance().Kind.String()
		}
		isStatic := false
		if p.at(lexer.Static) {
			isStatic = true
			p.advance()
		}

		switch {
		case p.at(lexer.Constructor):
			p.advance()
			params, err := p.parseParamList()
			if err != nil {
				return nil, err
			}
			body, err := p.parseBlockStmts()
			if err != nil {
				return nil, err
			}
			decl.Constructor = &ast.ConstructorDecl{StmtBase: ast.NewStmtBase(pos), Params: params, Body: body}

		case p.at(lexer.Operator):
			p.advance()
			opTok := p.advance()
			params, err := p.parseParamList()
			if err != nil {
				return nil, err
			}
			ret, err := p.parseOptionalReturnType()
			if err != nil {
				return nil, err
			}
			body, err := p.parseBlockStmts()
			if err != nil {
				return nil, err
			}
			decl.Operators = append(decl.Operators, &ast.OperatorOverloadDecl{
				StmtBase: ast.NewStmtBase(pos), Operator: opTok.Kind.String(), Params: params, Ret: ret, Body: body,
			})

		case p.at(lexer.Identifier):
			memberName := p.advance().Lexeme
			if p.at(lexer.LParen) {
				params, err := p.parseParamList()
				if err != nil {
					return nil, err
				}
				ret, err := p.parseOptionalReturnType()
				if err != nil {
					return nil, err
				}
				body, err := p.parseBlockStmts()
				if err != nil {
					return nil, err
				}
				decl.Methods = append(decl.Methods, &ast.MethodDecl{
					StmtBase: ast.NewStmtBase(pos), Name: memberName, Params: params, Ret: ret, Body: body,
					IsStatic: isStatic, Access: access,
				})
				continue
			}
			typ := ast.Any
			if p.at(lexer.Colon) {
				p.advance()
				var err error
				typ, _, err = p.parseTypeAnnotation()
				if err != nil {
					return nil, err
				}
			}
			var def ast.Expr
			if p.at(lexer.Assign) {
				p.advance()
				var err error
				def, err = p.parseAssignment()
				if err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(lexer.Semicolon); err != nil {
				return nil, err
			}
			decl.Fields = append(decl.Fields, ast.ClassField{
				Name: memberName, Type: typ, Default: def, IsStatic: isStatic, Access: access,
			})

		default:
			return nil, diag.ParseError(p.pos0(), "unexpected token %s in class body", p.cur().Kind)
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseIf() (*ast.IfStmt, error) {
	pos := p.pos0()
	p.advance()
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	then, err := p.parseBlockOrSingleStmt()
	if err != nil {
		return nil, err
	}
	var els []ast.Stmt
	if p.at(lexer.Else) {
		p.advance()
		if p.at(lexer.If) {
			inner, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			els = []ast.Stmt{inner}
		} else {
			els, err = p.parseBlockOrSingleStmt()
			if err != nil {
				return nil, err
			}
		}
	}
	return &ast.IfStmt{StmtBase: ast.NewStmtBase(pos), Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseWhile() (*ast.WhileStmt, error) {
	pos := p.pos0()
	p.advance()
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlockOrSingleStmt()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{StmtBase: ast.NewStmtBase(pos), Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	pos := p.pos0()
	p.advance() // `for`
	if p.at(lexer.Each) {
		return p.parseForEach(pos)
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var init ast.Stmt
	if !p.at(lexer.Semicolon) {
		var err error
		if p.at(lexer.Var) || p.at(lexer.Let) || p.at(lexer.Const) {
			init, err = p.parseVarDeclStmt(false)
		} else {
			init, err = p.parseExprStmtBare()
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	var cond ast.Expr
	if !p.at(lexer.Semicolon) {
		var err error
		cond, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	var post ast.Stmt
	if !p.at(lexer.RParen) {
		var err error
		post, err = p.parseExprStmtBare()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlockOrSingleStmt()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{StmtBase: ast.NewStmtBase(pos), Init: init, Cond: cond, Post: post, Body: body}, nil
}

func (p *Parser) parseForEach(pos diag.Position) (*ast.ForEachStmt, error) {
	p.advance() // `each`
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Pipe); err != nil {
		return nil, err
	}
	first, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	keyVar, valueVar, valueOnly := "", first.Lexeme, true
	if p.at(lexer.Comma) {
		p.advance()
		second, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		keyVar, valueVar, valueOnly = first.Lexeme, second.Lexeme, false
	}
	if _, err := p.expect(lexer.Pipe); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.In); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlockOrSingleStmt()
	if err != nil {
		return nil, err
	}
	return &ast.ForEachStmt{
		StmtBase: ast.NewStmtBase(pos), KeyVar: keyVar, ValueVar: valueVar, ValueOnly: valueOnly,
		Iterable: iterable, Body: body,
	}, nil
}

func (p *Parser) parseSwitch() (*ast.SwitchStmt, error) {
	pos := p.pos0()
	p.advance()
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	disc, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var cases []ast.CaseClause
	for p.at(lexer.Case) || p.at(lexer.Default) {
		var values []ast.Expr
		if p.at(lexer.Case) {
			p.advance()
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		} else {
			p.advance()
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		var body []ast.Stmt
		if p.at(lexer.LBrace) {
			body, err = p.parseBlockStmts()
			if err != nil {
				return nil, err
			}
		} else {
			for !p.at(lexer.Case) && !p.at(lexer.Default) && !p.at(lexer.RBrace) {
				s, err := p.parseStmt()
				if err != nil {
					return nil, err
				}
				body = append(body, s)
			}
		}
		cases = append(cases, ast.CaseClause{Values: values, Body: body})
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return &ast.SwitchStmt{StmtBase: ast.NewStmtBase(pos), Discriminant: disc, Cases: cases}, nil
}

func (p *Parser) parseReturn() (*ast.ReturnStmt, error) {
	pos := p.pos0()
	p.advance()
	var val ast.Expr
	if !p.at(lexer.Semicolon) {
		var err error
		val, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{StmtBase: ast.NewStmtBase(pos), Value: val}, nil
}

func (p *Parser) parseBreak() (*ast.BreakStmt, error) {
	pos := p.pos0()
	p.advance()
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &ast.BreakStmt{StmtBase: ast.NewStmtBase(pos)}, nil
}

func (p *Parser) parseImport() (*ast.ImportStmt, error) {
	pos := p.pos0()
	p.advance()
	var specs []ast.ImportSpecifier
	switch {
	case p.at(lexer.Multiply):
		p.advance()
		if _, err := p.expect(lexer.As); err != nil {
			return nil, err
		}
		local, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ast.ImportSpecifier{Local: local.Lexeme, IsNamespace: true})
	case p.at(lexer.LBrace):
		p.advance()
		for !p.at(lexer.RBrace) {
			imported, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			local := imported.Lexeme
			if p.at(lexer.As) {
				p.advance()
				lt, err := p.expect(lexer.Identifier)
				if err != nil {
					return nil, err
				}
				local = lt.Lexeme
			}
			specs = append(specs, ast.ImportSpecifier{Local: local, Imported: imported.Lexeme})
			if p.at(lexer.Comma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RBrace); err != nil {
			return nil, err
		}
	default:
		local, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ast.ImportSpecifier{Local: local.Lexeme, IsDefault: true})
	}
	if _, err := p.expect(lexer.From); err != nil {
		return nil, err
	}
	modTok, err := p.expect(lexer.String)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &ast.ImportStmt{StmtBase: ast.NewStmtBase(pos), Specifiers: specs, ModulePath: modTok.Lexeme}, nil
}

func (p *Parser) parseExport() (*ast.ExportStmt, error) {
	pos := p.pos0()
	p.advance()
	if p.at(lexer.Default) {
		p.advance()
		switch {
		case p.at(lexer.Function):
			decl, err := p.parseFunctionDecl()
			if err != nil {
				return nil, err
			}
			return &ast.ExportStmt{StmtBase: ast.NewStmtBase(pos), IsDefault: true, Decl: decl}, nil
		case p.at(lexer.Class):
			decl, err := p.parseClassDecl()
			if err != nil {
				return nil, err
			}
			return &ast.ExportStmt{StmtBase: ast.NewStmtBase(pos), IsDefault: true, Decl: decl}, nil
		default:
			val, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.Semicolon); err != nil {
				return nil, err
			}
			return &ast.ExportStmt{StmtBase: ast.NewStmtBase(pos), IsDefault: true, Default: val}, nil
		}
	}
	switch {
	case p.at(lexer.Function):
		decl, err := p.parseFunctionDecl()
		if err != nil {
			return nil, err
		}
		return &ast.ExportStmt{StmtBase: ast.NewStmtBase(pos), Decl: decl}, nil
	case p.at(lexer.Class):
		decl, err := p.parseClassDecl()
		if err != nil {
			return nil, err
		}
		return &ast.ExportStmt{StmtBase: ast.NewStmtBase(pos), Decl: decl}, nil
	case p.at(lexer.LBrace):
		p.advance()
		var specs []ast.ExportSpecifier
		for !p.at(lexer.RBrace) {
			local, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			exported := local.Lexeme
			if p.at(lexer.As) {
				p.advance()
				et, err := p.expect(lexer.Identifier)
				if err != nil {
					return nil, err
				}
				exported = et.Lexeme
			}
			specs = append(specs, ast.ExportSpecifier{Local: local.Lexeme, Exported: exported})
			if p.at(lexer.Comma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RBrace); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
		return &ast.ExportStmt{StmtBase: ast.NewStmtBase(pos), Specifiers: specs}, nil
	default:
		return nil, diag.ParseError(p.pos0(), "unexpected token %s after export", p.cur().Kind)
	}
}

func (p *Parser) parseExprStmt() (*ast.ExprStmt, error) {
	pos := p.pos0()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{StmtBase: ast.NewStmtBase(pos), X: e}, nil
}

// parseExprStmtBare parses an expression statement without consuming a
// trailing semicolon, for the init/post clauses of a C-style for.
func (p *Parser) parseExprStmtBare() (*ast.ExprStmt, error) {
	pos := p.pos0()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{StmtBase: ast.NewStmtBase(pos), X: e}, nil
}

// --- expressions ---
//
// Precedence climbs: assignment -> ternary -> logical-or -> logical-and
// -> equality -> comparison -> addition -> multiplication -> exponent
// (right-assoc) -> unary -> call/member -> primary.

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseAssignment() }

func isAssignable(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Identifier, *ast.PropertyAccess, *ast.ComputedPropertyAccess, *ast.ArrayAccess:
		return true
	default:
		return false
	}
}

func (p *Parser) parseAssignment() (ast.Expr, error) {
	left, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	switch p.cur().Kind {
	case lexer.Assign, lexer.PlusAssign, lexer.MinusAssign, lexer.MultiplyAssign, lexer.DivideAssign:
		opTok := p.advance()
		if !isAssignable(left) {
			return nil, diag.ParseError(left.Position(), "invalid assignment target")
		}
		right, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return p.buildAssignment(left, right, opTok)
	}
	return left, nil
}

// buildAssignment folds a plain property/array assignment target into
// PropertyAssignment, which (unlike PropertyAccess) carries a value.
func (p *Parser) buildAssignment(left, right ast.Expr, opTok lexer.Token) (ast.Expr, error) {
	pos := left.Position()
	switch t := left.(type) {
	case *ast.PropertyAccess:
		return &ast.PropertyAssignment{Base: ast.NewBase(pos), Object: t.Object, Name: t.Name, Value: right}, nil
	case *ast.ComputedPropertyAccess:
		return &ast.PropertyAssignment{Base: ast.NewBase(pos), Object: t.Object, Key: t.Key, Value: right}, nil
	default:
		return &ast.Assignment{Base: ast.NewBase(pos), Target: left, Value: right, Op: opTok.Kind.String()}, nil
	}
}

func (p *Parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.Question) {
		pos := p.pos0()
		p.advance()
		then, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		els, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{Base: ast.NewBase(pos), Cond: cond, Then: then, Else: els}, nil
	}
	return cond, nil
}

func (p *Parser) parseLogicalOr() (ast.Expr, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Or) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseLogicalAnd() (ast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.And) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Equal) || p.at(lexer.NotEqual) || p.at(lexer.StrictEqual) || p.at(lexer.StrictNotEqual) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Less) || p.at(lexer.Greater) || p.at(lexer.LessEqual) || p.at(lexer.GreaterEqual) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAddition() (ast.Expr, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Plus) || p.at(lexer.Minus) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplication() (ast.Expr, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Multiply) || p.at(lexer.Divide) || p.at(lexer.Modulo) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left, nil
}

// parseExponent is right-associative: 2 ** 3 ** 2 == 2 ** (3 ** 2).
func (p *Parser) parseExponent() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.Power) {
		pos := p.pos0()
		op := p.advance()
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case lexer.Not, lexer.Minus, lexer.Plus:
		pos := p.pos0()
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Prefix: true, Operand: operand}, nil
	case lexer.Increment, lexer.Decrement:
		pos := p.pos0()
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Prefix: true, Operand: operand}, nil
	case lexer.Typeof:
		pos := p.pos0()
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Base: ast.NewBase(pos), Op: op.Kind.String(), Prefix: true, Operand: operand}, nil
	case lexer.Go:
		pos := p.pos0()
		p.advance()
		callee, err := p.parseCallMember()
		if err != nil {
			return nil, err
		}
		call, ok := callee.(*ast.Call)
		if !ok {
			return nil, diag.ParseError(pos, "go must be followed by a function call")
		}
		return &ast.GoExpr{Base: ast.NewBase(pos), Call: call}, nil
	case lexer.Await:
		pos := p.pos0()
		p.advance()
		target, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.AwaitExpr{Base: ast.NewBase(pos), Target: target}, nil
	default:
		return p.parseCallMemberPostfix()
	}
}

// parseCallMemberPostfix parses a call/member chain and then folds a
// trailing `++`/`--` onto it (postfix evaluates to the pre-increment
// value, spec.md §4.6).
func (p *Parser) parseCallMemberPostfix() (ast.Expr, error) {
	e, err := p.parseCallMember()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.Increment) || p.at(lexer.Decrement) {
		pos := p.pos0()
		op := p.advance()
		return &ast.PostfixIncDec{Base: ast.NewBase(pos), Operand: e, Op: op.Kind.String()}, nil
	}
	return e, nil
}

func (p *Parser) parseCallMember() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case lexer.Dot:
			p.advance()
			name, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			pos := e.Position()
			if p.at(lexer.LParen) {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				e = &ast.MethodCall{Base: ast.NewBase(pos), Object: e, Name: name.Lexeme, Args: args}
			} else {
				e = &ast.PropertyAccess{Base: ast.NewBase(pos), Object: e, Name: name.Lexeme}
			}
		case lexer.SliceColon:
			// The lexer collapses a bracketed-colon with no bounds,
			// `[:]`, into a single token rather than LBracket+Colon+RBracket.
			pos := e.Position()
			p.advance()
			e = &ast.SliceExpr{Base: ast.NewBase(pos), Array: e}
		case lexer.LBracket:
			pos := e.Position()
			p.advance()
			var lo ast.Expr
			if !p.at(lexer.Colon) {
				lo, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
			if p.at(lexer.Colon) {
				p.advance()
				var hi ast.Expr
				if !p.at(lexer.RBracket) {
					hi, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
				if _, err := p.expect(lexer.RBracket); err != nil {
					return nil, err
				}
				e = &ast.SliceExpr{Base: ast.NewBase(pos), Array: e, Lo: lo, Hi: hi}
				continue
			}
			if _, err := p.expect(lexer.RBracket); err != nil {
				return nil, err
			}
			if p.at(lexer.LParen) {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				e = &ast.ComputedMethodCall{Base: ast.NewBase(pos), Object: e, Name: lo, Args: args}
			} else {
				e = &ast.ComputedPropertyAccess{Base: ast.NewBase(pos), Object: e, Key: lo}
			}
		case lexer.LParen:
			pos := e.Position()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			e = &ast.Call{Base: ast.NewBase(pos), Callee: e, Args: args}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expr, error) {
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.at(lexer.RParen) {
		a, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.at(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	pos := p.pos0()
	tok := p.cur()
	switch tok.Kind {
	case lexer.Number:
		p.advance()
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, diag.ParseError(pos, "malformed number literal %q", tok.Lexeme)
		}
		return &ast.NumberLit{Base: ast.NewBase(pos), Value: v}, nil
	case lexer.String:
		p.advance()
		return &ast.StringLit{Base: ast.NewBase(pos), Value: tok.Lexeme}, nil
	case lexer.Boolean:
		p.advance()
		return &ast.BooleanLit{Base: ast.NewBase(pos), Value: tok.Lexeme == "true"}, nil
	case lexer.Template:
		p.advance()
		parts, err := p.splitTemplate(tok.Lexeme, pos)
		if err != nil {
			return nil, err
		}
		return &ast.TemplateLit{Base: ast.NewBase(pos), Raw: tok.Lexeme, Parts: parts}, nil
	case lexer.Regex:
		p.advance()
		pattern, flags := splitRegex(tok.Lexeme)
		return &ast.RegexLit{Base: ast.NewBase(pos), Pattern: pattern, Flags: flags}, nil
	case lexer.Identifier:
		p.advance()
		return &ast.Identifier{Base: ast.NewBase(pos), Name: tok.Lexeme}, nil
	case lexer.This:
		p.advance()
		return &ast.ThisExpr{Base: ast.NewBase(pos)}, nil
	case lexer.Super:
		return p.parseSuper(pos)
	case lexer.New:
		return p.parseNewExpr(pos)
	case lexer.Function:
		return p.parseFunctionExpr(pos)
	case lexer.LParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.LBracket:
		return p.parseArrayLit(pos)
	case lexer.LBrace:
		return p.parseObjectLit(pos)
	default:
		return nil, diag.ParseError(pos, "unexpected token %s %q in expression", tok.Kind, tok.Lexeme)
	}
}

func (p *Parser) parseSuper(pos diag.Position) (ast.Expr, error) {
	p.advance()
	if p.at(lexer.LParen) {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &ast.SuperCall{Base: ast.NewBase(pos), Args: args}, nil
	}
	if _, err := p.expect(lexer.Dot); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	return &ast.SuperMethodCall{Base: ast.NewBase(pos), Name: name.Lexeme, Args: args}, nil
}

func (p *Parser) parseNewExpr(pos diag.Position) (ast.Expr, error) {
	p.advance()
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	if p.at(lexer.LBrace) {
		p.advance()
		var dartArgs []ast.ObjectProperty
		for !p.at(lexer.RBrace) {
			key, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.Colon); err != nil {
				return nil, err
			}
			val, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			dartArgs = append(dartArgs, ast.ObjectProperty{Key: key.Lexeme, Value: val})
			if p.at(lexer.Comma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RBrace); err != nil {
			return nil, err
		}
		return &ast.NewExpr{Base: ast.NewBase(pos), ClassName: name.Lexeme, DartArgs: dartArgs}, nil
	}
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	return &ast.NewExpr{Base: ast.NewBase(pos), ClassName: name.Lexeme, Args: args}, nil
}

func (p *Parser) parseArrayLit(pos diag.Position) (ast.Expr, error) {
	p.advance()
	var elems []ast.Expr
	for !p.at(lexer.RBracket) {
		e, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.at(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	return &ast.ArrayLit{Base: ast.NewBase(pos), Elements: elems}, nil
}

func (p *Parser) parseObjectLit(pos diag.Position) (ast.Expr, error) {
	p.advance()
	var props []ast.ObjectProperty
	for !p.at(lexer.RBrace) {
		var key string
		switch {
		case p.at(lexer.String):
			key = p.advance().Lexeme
		default:
			kt, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			key = kt.Lexeme
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		val, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		props = append(props, ast.ObjectProperty{Key: key, Value: val})
		if p.at(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return &ast.ObjectLit{Base: ast.NewBase(pos), Properties: props}, nil
}

func (p *Parser) parseFunctionExpr(pos diag.Position) (ast.Expr, error) {
	p.advance()
	name := ""
	if p.at(lexer.Identifier) {
		name = p.advance().Lexeme
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	ret, err := p.parseOptionalReturnType()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockStmts()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionExpr{Base: ast.NewBase(pos), Name: name, Params: params, Ret: ret, Body: body}, nil
}

// splitRegex splits a lexer Regex token's full lexeme ("/pattern/flags")
// into its pattern and trailing flag run; the lexer stores both
// delimiters and flags in one Lexeme (see lexer.scanRegex).
func splitRegex(full string) (pattern, flags string) {
	if len(full) < 2 || full[0] != '/' {
		return full, ""
	}
	last := strings.LastIndexByte(full, '/')
	if last <= 0 {
		return full[1:], ""
	}
	return full[1:last], full[last+1:]
}

// splitTemplate scans a template literal's raw text for ${...}
// interpolation spans (brace-depth balanced; not nesting-aware of
// quoted strings inside the span) and recursively lexes/parses each
// span into an expression. Text runs between spans become StringLit
// parts so Parts strictly alternates string/expression entries.
func (p *Parser) splitTemplate(raw string, pos diag.Position) ([]ast.Expr, error) {
	var parts []ast.Expr
	var textRun strings.Builder
	runes := []rune(raw)
	flushText := func() {
		if textRun.Len() > 0 {
			parts = append(parts, &ast.StringLit{Base: ast.NewBase(pos), Value: textRun.String()})
			textRun.Reset()
		}
	}
	for i := 0; i < len(runes); i++ {
		if runes[i] == '$' && i+1 < len(runes) && runes[i+1] == '{' {
			depth := 1
			j := i + 2
			for ; j < len(runes) && depth > 0; j++ {
				switch runes[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
			}
			body := string(runes[i+2 : j-1])
			flushText()
			toks, err := lexer.New(p.file, body).Tokenize()
			if err != nil {
				return nil, err
			}
			sub := New(p.file, toks)
			e, err := sub.parseExpr()
			if err != nil {
				return nil, err
			}
			parts = append(parts, e)
			i = j - 1
			continue
		}
		textRun.WriteRune(runes[i])
	}
	flushText()
	return parts, nil
}

