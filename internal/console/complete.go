package console

import "strings"

// CommandCompleter implements readline.AutoCompleter over a fixed set
// of command names, completing only the first word of the line
// (command names never appear past the first position).
type CommandCompleter struct {
	Names []string
}

func (c *CommandCompleter) Do(line []rune, pos int) ([][]rune, int) {
	start := 0
	for start < pos {
		if line[start] == ' ' {
			break
		}
		start++
	}
	if start != pos {
		// cursor is past the first word; fbdbg commands take no
		// argument completion.
		return nil, 0
	}

	prefix := string(line[:pos])
	if prefix == "" {
		return nil, 0
	}

	var result [][]rune
	for _, name := range c.Names {
		if strings.HasPrefix(name, prefix) {
			result = append(result, []rune(name[len(prefix):]))
		}
	}
	return result, len(prefix)
}
