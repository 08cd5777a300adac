package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the PHP lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, 0x2A, 052, 0b101
	TokenFloat      // 3.14, 1.5e10
	TokenString     // 'hello', "hello" without interpolation
	TokenTemplate   // "hello $name", parts in Token.Parts
	TokenInlineHTML // text outside <?php ... ?>
	TokenVariable   // $name
	TokenIdentifier // foo, PHP_EOL
	TokenDollar     // $ of $$name and ${expr}

	// Keywords
	TokenIf
	TokenElse
	TokenElseif
	TokenWhile
	TokenDo
	TokenFor
	TokenForeach
	TokenAs
	TokenBreak
	TokenContinue
	TokenFunction
	TokenReturn
	TokenEcho
	TokenPrint
	TokenGlobal
	TokenStatic
	TokenArray
	TokenList
	TokenIsset
	TokenEmpty
	TokenUnset
	TokenAnd // and
	TokenOr  // or
	TokenXor // xor
	TokenClass

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenSemicolon // ;
	TokenComma     // ,
	TokenArrow     // =>
	TokenQuestion  // ?
	TokenColon     // :

	// Operators
	TokenAssign      // =
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenMulAssign   // *=
	TokenDivAssign   // /=
	TokenModAssign   // %=
	TokenConcatAssign
	TokenAndAssign // &=
	TokenOrAssign  // |=
	TokenXorAssign // ^=
	TokenShlAssign // <<=
	TokenShrAssign // >>=
	TokenCoalesceAssign
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenDot
	TokenAmp
	TokenPipe
	TokenCaret
	TokenTilde
	TokenShl
	TokenShr
	TokenBang
	TokenAndAnd
	TokenOrOr
	TokenEq
	TokenNe
	TokenIdentical
	TokenNotIdentical
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenCoalesce
	TokenInc
	TokenDec
	TokenCast // (int), (string) ... Literal holds the type name
	TokenAt
)

var tokenNames = map[TokenType]string{
	TokenEOF:            "EOF",
	TokenError:          "ERROR",
	TokenInteger:        "INTEGER",
	TokenFloat:          "FLOAT",
	TokenString:         "STRING",
	TokenTemplate:       "TEMPLATE",
	TokenInlineHTML:     "INLINE_HTML",
	TokenVariable:       "VARIABLE",
	TokenIdentifier:     "IDENTIFIER",
	TokenDollar:         "$",
	TokenIf:             "if",
	TokenElse:           "else",
	TokenElseif:         "elseif",
	TokenWhile:          "while",
	TokenDo:             "do",
	TokenFor:            "for",
	TokenForeach:        "foreach",
	TokenAs:             "as",
	TokenBreak:          "break",
	TokenContinue:       "continue",
	TokenFunction:       "function",
	TokenReturn:         "return",
	TokenEcho:           "echo",
	TokenPrint:          "print",
	TokenGlobal:         "global",
	TokenStatic:         "static",
	TokenArray:          "array",
	TokenList:           "list",
	TokenIsset:          "isset",
	TokenEmpty:          "empty",
	TokenUnset:          "unset",
	TokenAnd:            "and",
	TokenOr:             "or",
	TokenXor:            "xor",
	TokenClass:          "class",
	TokenLParen:         "(",
	TokenRParen:         ")",
	TokenLBracket:       "[",
	TokenRBracket:       "]",
	TokenLBrace:         "{",
	TokenRBrace:         "}",
	TokenSemicolon:      ";",
	TokenComma:          ",",
	TokenArrow:          "=>",
	TokenQuestion:       "?",
	TokenColon:          ":",
	TokenAssign:         "=",
	TokenPlusAssign:     "+=",
	TokenMinusAssign:    "-=",
	TokenMulAssign:      "*=",
	TokenDivAssign:      "/=",
	TokenModAssign:      "%=",
	TokenConcatAssign:   ".=",
	TokenAndAssign:      "&=",
	TokenOrAssign:       "|=",
	TokenXorAssign:      "^=",
	TokenShlAssign:      "<<=",
	TokenShrAssign:      ">>=",
	TokenCoalesceAssign: "??=",
	TokenPlus:           "+",
	TokenMinus:          "-",
	TokenStar:           "*",
	TokenSlash:          "/",
	TokenPercent:        "%",
	TokenDot:            ".",
	TokenAmp:            "&",
	TokenPipe:           "|",
	TokenCaret:          "^",
	TokenTilde:          "~",
	TokenShl:            "<<",
	TokenShr:            ">>",
	TokenBang:           "!",
	TokenAndAnd:         "&&",
	TokenOrOr:           "||",
	TokenEq:             "==",
	TokenNe:             "!=",
	TokenIdentical:      "===",
	TokenNotIdentical:   "!==",
	TokenLt:             "<",
	TokenLe:             "<=",
	TokenGt:             ">",
	TokenGe:             ">=",
	TokenCoalesce:       "??",
	TokenInc:            "++",
	TokenDec:            "--",
	TokenCast:           "CAST",
	TokenAt:             "@",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string         // the raw text, or the decoded string value
	Parts   []TemplatePart // pieces of an interpolated string
	Pos     Position       // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// TemplatePart is one piece of a double-quoted string: literal text, or
// the source of an embedded variable expression.
type TemplatePart struct {
	Text string
	Expr string // non-empty for "$name", "$a[0]" and "{$expr}" pieces
	Pos  Position
}

// Keywords are matched case-insensitively.
var reservedWords = map[string]TokenType{
	"if":       TokenIf,
	"else":     TokenElse,
	"elseif":   TokenElseif,
	"while":    TokenWhile,
	"do":       TokenDo,
	"for":      TokenFor,
	"foreach":  TokenForeach,
	"as":       TokenAs,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"function": TokenFunction,
	"return":   TokenReturn,
	"echo":     TokenEcho,
	"print":    TokenPrint,
	"global":   TokenGlobal,
	"static":   TokenStatic,
	"array":    TokenArray,
	"list":     TokenList,
	"isset":    TokenIsset,
	"empty":    TokenEmpty,
	"unset":    TokenUnset,
	"and":      TokenAnd,
	"or":       TokenOr,
	"xor":      TokenXor,
	"class":    TokenClass,
}

// castTypes maps the names accepted inside a cast to their canonical form.
var castTypes = map[string]string{
	"int":     "int",
	"integer": "int",
	"bool":    "bool",
	"boolean": "bool",
	"float":   "float",
	"double":  "float",
	"real":    "float",
	"string":  "string",
	"array":   "array",
	"unset":   "unset",
}
