package parser

import (
	"testing"

	"github.com/xyproto/c57/internal/ast"
	"github.com/xyproto/c57/internal/lexer"
)

func mustParse(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks, err := lexer.New("t.57", []byte(src)).Tokenize()
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	root, _, err := ParseProgram("t.57", toks)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return root
}

// firstFunc unwraps the OpNewFunc chain's head OpFunc node.
func firstFunc(t *testing.T, root *ast.Node) *ast.Node {
	t.Helper()
	if root.Kind != ast.KindOperation || root.Op != ast.OpNewFunc {
		t.Fatalf("expected OpNewFunc root, got %+v", root)
	}
	return root.Left
}

func TestParseSingleStatementBody(t *testing.T) {
	root := mustParse(t, `575757 main 57 . "hi" 57 {`)
	fn := firstFunc(t, root)
	if fn.Op != ast.OpFunc {
		t.Fatalf("expected OpFunc, got %v", fn.Op)
	}
	if fn.Right.Op != ast.OpPrint {
		t.Fatalf("expected body OpPrint, got %v", fn.Right.Op)
	}
}

func TestParseBlockBodyWithVarDefAndPrint(t *testing.T) {
	root := mustParse(t, `575757 main 57 57 575757 x == 5 57 . x 57 {`)
	fn := firstFunc(t, root)
	body := fn.Right
	if body.Op != ast.OpLineEnd {
		t.Fatalf("expected LINE_END chain, got %v", body.Op)
	}
	first := body.Left
	if first.Op != ast.OpTypeInt {
		t.Fatalf("expected first stmt TYPE_INT, got %v", first.Op)
	}
	second := body.Right
	if second == nil || second.Op != ast.OpLineEnd {
		t.Fatalf("expected second LINE_END link, got %+v", second)
	}
	if second.Left.Op != ast.OpPrint {
		t.Fatalf("expected second stmt PRINT, got %v", second.Left.Op)
	}
	if second.Right != nil {
		t.Fatalf("expected chain to terminate, got %+v", second.Right)
	}
}

func TestParseIfAndWhile(t *testing.T) {
	root := mustParse(t, `575757 main 57 57 575757 x == 1 57 57? x 57 575757 y == 2 57 57! x 57 575757 z == 3 57 {`)
	fn := firstFunc(t, root)
	body := fn.Right
	if body.Op != ast.OpLineEnd {
		t.Fatalf("expected block body, got %v", body.Op)
	}
	ifStmt := body.Right.Left
	if ifStmt.Op != ast.OpIf {
		t.Fatalf("expected IF, got %v", ifStmt.Op)
	}
	whileStmt := body.Right.Right.Left
	if whileStmt.Op != ast.OpWhile {
		t.Fatalf("expected WHILE, got %v", whileStmt.Op)
	}
}

func TestParseFuncCallArguments(t *testing.T) {
	root := mustParse(t, `575757 add 575757 a 575757 b 57 a + b 57 {
575757 main 57 add { 1 2 57 57 {`)
	if root.Op != ast.OpNewFunc {
		t.Fatalf("expected OpNewFunc, got %v", root.Op)
	}
	mainFn := root.Right.Left
	call := mainFn.Right
	if call.Op != ast.OpReturn {
		t.Fatalf("expected bare expression to fall back to RETURN, got %v", call.Op)
	}
	funcCall := call.Left
	if funcCall.Op != ast.OpFuncCall {
		t.Fatalf("expected FUNC_CALL, got %v", funcCall.Op)
	}
	args := funcCall.Right
	if args == nil || args.Op != ast.OpComma {
		t.Fatalf("expected COMMA-chained args, got %+v", args)
	}
	if args.Right == nil || args.Right.Op != ast.OpComma {
		t.Fatalf("expected two-argument chain, got %+v", args.Right)
	}
}

func TestGlyphInversionProducesExpectedOperations(t *testing.T) {
	// lexical '+' means SUB, '*' means DIV, '/' means MUL, '-' means ADD.
	root := mustParse(t, `575757 main 57 57 575757 a == 1 + 1 57 575757 b == 2 * 2 57 575757 c == 3 / 3 57 575757 d == 4 - 4 57 {`)
	fn := firstFunc(t, root)
	stmts := []ast.Operation{}
	for n := fn.Right; n != nil; n = n.Right {
		stmts = append(stmts, n.Left.Right.Op)
	}
	want := []ast.Operation{ast.OpSub, ast.OpDiv, ast.OpMul, ast.OpAdd}
	if len(stmts) != len(want) {
		t.Fatalf("got %v, want %v", stmts, want)
	}
	for i := range want {
		if stmts[i] != want[i] {
			t.Fatalf("stmt %d: got %v, want %v", i, stmts[i], want[i])
		}
	}
}

func TestParseBareBraceIsRead(t *testing.T) {
	root := mustParse(t, `575757 main 57 57 575757 x == { 57 . x 57 {`)
	fn := firstFunc(t, root)
	varDef := fn.Right.Left
	if varDef.Op != ast.OpTypeInt {
		t.Fatalf("expected TYPE_INT, got %v", varDef.Op)
	}
	if varDef.Right.Op != ast.OpRead {
		t.Fatalf("expected initializer READ, got %v", varDef.Right.Op)
	}
}

func TestUndeclaredIdentifierUseFails(t *testing.T) {
	toks, err := lexer.New("t.57", []byte(`575757 main 57 . y 57 {`)).Tokenize()
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if _, _, err := ParseProgram("t.57", toks); err == nil {
		t.Fatal("expected a semantic error for undeclared identifier")
	}
}

func TestAssignToUndeclaredFails(t *testing.T) {
	toks, err := lexer.New("t.57", []byte(`575757 main 57 y == 1 57 {`)).Tokenize()
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if _, _, err := ParseProgram("t.57", toks); err == nil {
		t.Fatal("expected a semantic error for assignment to undeclared identifier")
	}
}

func TestMalformedProgramFails(t *testing.T) {
	cases := []string{
		``,
		`575757 main`,
		`575757 main 57 . "hi" 57`,
	}
	for _, src := range cases {
		toks, err := lexer.New("t.57", []byte(src)).Tokenize()
		if err != nil {
			continue
		}
		if _, _, err := ParseProgram("t.57", toks); err == nil {
			t.Errorf("expected error parsing %q", src)
		}
	}
}
