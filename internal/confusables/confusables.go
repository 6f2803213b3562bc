// Package confusables maps visually confusable characters onto their Latin prototypes so
// that a homograph hostname and the domain it imitates share one skeleton.
package confusables

import (
	"bufio"
	_ "embed"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

//go:embed confusables.txt
var tableData string

var table = sync.OnceValue(func() map[rune]string {
	return parseTable(tableData)
})

// parseTable reads lines of the form "source ; target ; type # comment" where source and
// target are space-separated hex code points. Malformed lines are skipped.
func parseTable(data string) map[rune]string {
	out := make(map[rune]string)
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Split(line, ";")
		if len(fields) < 2 {
			continue
		}
		source, ok := decodeCodePoints(fields[0])
		if !ok || len([]rune(source)) != 1 {
			continue
		}
		target, ok := decodeCodePoints(fields[1])
		if !ok || target == "" {
			continue
		}
		out[[]rune(source)[0]] = target
	}
	return out
}

func decodeCodePoints(field string) (string, bool) {
	var b strings.Builder
	for _, hex := range strings.Fields(field) {
		cp, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return "", false
		}
		b.WriteRune(rune(cp))
	}
	return b.String(), b.Len() > 0
}

// Skeleton returns the UTS #39 skeleton of s: NFD, prototype substitution, NFD again.
func Skeleton(s string) string {
	t := table()
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if proto, ok := t[r]; ok {
			b.WriteString(proto)
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFD.String(b.String())
}

// ContainsHomoglyphs reports whether s has at least one character with a confusable prototype.
func ContainsHomoglyphs(s string) bool {
	t := table()
	for _, r := range norm.NFD.String(s) {
		if _, ok := t[r]; ok {
			return true
		}
	}
	return false
}

// Confusable reports whether a and b differ but render alike.
func Confusable(a, b string) bool {
	return a != b && Skeleton(a) == Skeleton(b)
}
