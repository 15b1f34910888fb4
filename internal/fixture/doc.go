// Package fixture loads and parses engine test fixtures.
//
// A fixture is a standalone .js/.ts/.tsx script that exercises one language
// feature. It carries a license header, optional @tc.* metadata, ambient
// hook declarations, and calls to the two harness hooks:
//
//	declare function AssertType(value: any, type: string): void;
//
//	let x = 1;
//	AssertType(x, "number");
//	print(x); // 1
//
// # Parsing
//
// Fixtures are parsed with tree-sitter (JavaScript grammar for .js,
// TypeScript/TSX grammars for .ts/.tsx). Parsing is error tolerant: syntax
// errors are collected on the Fixture instead of aborting, so the harness
// decides whether they are fatal.
//
// Every AssertType call becomes an AssertionSite carrying the source text of
// its first argument, the expected type literal, and the anchor statement
// that precedes it. Every print call becomes a PrintSite. A trailing "//"
// comment on the line where a print call starts is the inline expected
// output for that call.
//
// # Mode
//
// A fixture declares what it checks with "@tc.mode: static|runtime|mixed".
// When the tag is missing, the mode is derived once at load time from the
// hooks the fixture calls and ModeDeclared is false.
package fixture
