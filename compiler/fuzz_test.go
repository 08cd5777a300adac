package compiler

import (
	"testing"
)

var fuzzSeeds = []string{
	`<?php echo 1;`,
	`<?php $a = array(1, 'k' => 2); $a[] = 3; foreach ($a as $k => &$v) { $v++; }`,
	`<?php function f(&$x, $y = -1) { static $n; global $g; return $x . "$y {$g['k']}"; }`,
	`<?php list($a, list(, $b)) = $c; $d ??= $e ?: $f;`,
	"<p><?= $x ?>\n</p><?php /* open",
	`<?php "${`,
	`<?php $$$a = ${'b'}[0];`,
	`<?php while (1) { do { break 2; } while (0); }`,
	`<?php 0x7FFFFFFFFFFFFFFF + 0b1 * 077 / .5e3;`,
}

// FuzzLexer checks that tokenizing never panics and always terminates
// with an EOF or error token.
func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		tokens := Tokenize(src)
		if len(tokens) == 0 {
			t.Fatal("no tokens")
		}
		last := tokens[len(tokens)-1].Type
		if last != TokenEOF && last != TokenError {
			t.Fatalf("stream ended with %v", tokens[len(tokens)-1])
		}
	})
}

// FuzzCompile checks that arbitrary input either compiles to a unit with a
// consistent stack depth or fails with a positioned error.
func FuzzCompile(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		unit, err := CompileSource("fuzz.php", src)
		if err != nil {
			if _, ok := err.(*CompileError); !ok {
				t.Fatalf("error %T %v is not a *CompileError", err, err)
			}
			return
		}
		if unit == nil {
			t.Fatal("nil unit without error")
		}
	})
}
