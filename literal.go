package hemlock

import "strings"

// literalSanitizer escapes the characters that would otherwise break a
// quoted string/rune literal when printed back out, used by Inspect()
// and the AST's literal String() methods.
var literalSanitizer = strings.NewReplacer(
	`"`, `\"`,
	`\`, `\\`,
	string('\n'), `\n`,
	string('\r'), `\r`,
	string('\t'), `\t`,
)

func escapeLiteral(s string) string {
	return literalSanitizer.Replace(s)
}
