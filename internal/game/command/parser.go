package command

import "strings"

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased, without a leading
	// slash or a trailing @mention.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// Slash reports whether the command was written as /command.
	Slash bool
}

// Parse splits a chat line into a command and arguments. Both "bid 10" and
// "/bid@table_bot 10" parse to command "bid" with args ["10"].
//
// Postcondition: Returns a ParseResult. If line is blank, Command is empty.
func Parse(line string) ParseResult {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ParseResult{}
	}
	word := fields[0]
	var res ParseResult
	if strings.HasPrefix(word, "/") {
		res.Slash = true
		word = word[1:]
	}
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	res.Command = strings.ToLower(word)
	if len(fields) > 1 {
		res.Args = fields[1:]
	}
	return res
}
