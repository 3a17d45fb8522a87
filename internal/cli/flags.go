package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// callInput is what `mcp-chat call <tool>` was asked to send.
type callInput struct {
	args  map[string]any
	quiet bool
	help  bool
}

// callArgParser walks the words after the tool name. Tool arguments come
// from --name value flags or one positional JSON object; with neither,
// a JSON object is read from stdin when it is not a terminal.
type callArgParser struct {
	words []string
	pos   int

	input       callInput
	rawJSON     string
	sawToolFlag bool
	sawAnyFlag  bool
	literal     bool
}

// parseCallInput parses `call` arguments. -q/--quiet and -h/--help belong
// to the command; a tool argument with one of those names is written
// --tool-<name> or placed after --.
func parseCallInput(words []string, stdin io.Reader, stdinIsTTY bool) (*callInput, error) {
	p := &callArgParser{
		words: words,
		input: callInput{args: map[string]any{}},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}

	switch {
	case p.rawJSON != "":
		obj, err := decodeCallJSON(p.rawJSON, "argument")
		if err != nil {
			return nil, err
		}
		p.input.args = obj
	case !p.sawAnyFlag && !stdinIsTTY && stdin != nil:
		obj, err := readCallJSON(stdin)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			p.input.args = obj
		}
	}
	return &p.input, nil
}

func (p *callArgParser) parse() error {
	for ; p.pos < len(p.words); p.pos++ {
		word := p.words[p.pos]
		if word == "--" && !p.literal {
			p.literal = true
			continue
		}
		if !p.literal && p.commandFlag(word) {
			p.sawAnyFlag = true
			continue
		}

		switch {
		case strings.HasPrefix(word, "--"):
			if err := p.toolFlag(word); err != nil {
				return err
			}
		case strings.HasPrefix(word, "-"):
			return fmt.Errorf("call: unknown flag %s (tool arguments use --name value)", word)
		case p.sawToolFlag:
			return fmt.Errorf("call: stray argument %q after tool flags", word)
		case p.rawJSON != "":
			return fmt.Errorf("call: only one JSON argument object is allowed")
		default:
			p.rawJSON = word
		}
	}
	return nil
}

func (p *callArgParser) commandFlag(word string) bool {
	switch word {
	case "-q", "--quiet":
		p.input.quiet = true
	case "-h", "--help":
		p.input.help = true
	default:
		return false
	}
	return true
}

// toolFlag records one --name[=value] tool argument. A bare flag not
// followed by a value is true. Repeating a name collects its values.
func (p *callArgParser) toolFlag(word string) error {
	if p.rawJSON != "" {
		return fmt.Errorf("call: give tool arguments as a JSON object or as --flags, not both")
	}

	body := strings.TrimPrefix(word, "--")
	if escaped, ok := strings.CutPrefix(body, "tool-"); ok {
		body = escaped
	}

	name, value, hasValue := strings.Cut(body, "=")
	if name == "" {
		return fmt.Errorf("call: malformed tool flag %s", word)
	}
	var v any = value
	if !hasValue {
		v = true
		if next := p.pos + 1; next < len(p.words) && !strings.HasPrefix(p.words[next], "--") {
			p.pos = next
			v = p.words[next]
		}
	}

	switch prev := p.input.args[name].(type) {
	case nil:
		p.input.args[name] = v
	case []any:
		p.input.args[name] = append(prev, v)
	default:
		p.input.args[name] = []any{prev, v}
	}
	p.sawToolFlag = true
	p.sawAnyFlag = true
	return nil
}

func readCallJSON(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("call: reading arguments from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return decodeCallJSON(text, "stdin")
}

func decodeCallJSON(text, source string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("call: %s must be a JSON object of tool arguments: %w", source, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("call: %s must be a JSON object of tool arguments, got null", source)
	}
	return obj, nil
}
