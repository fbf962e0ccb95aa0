package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type toolCallArgs struct {
	toolArgs map[string]any
	quiet    bool
	help     bool
}

var reservedToolFlagNames = map[string]struct{}{
	"quiet":  {},
	"help":   {},
	"config": {},
}

func isReservedToolFlagName(name string) bool {
	_, ok := reservedToolFlagNames[name]
	return ok
}

// toolFlagNames returns the flag spelling for a tool parameter and, for
// booleans, its negated form.
func toolFlagNames(name, typ string) (base string, negative string) {
	prefix := ""
	if isReservedToolFlagName(name) {
		prefix = "tool-"
	}

	base = "--" + prefix + name
	if typ == "boolean" && !strings.HasPrefix(name, "no-") {
		negative = "--" + prefix + "no-" + name
	}
	return base, negative
}

// parseToolCallArgs accepts either --key=value flags, a single JSON object
// argument, or a JSON object on stdin. Flag values stay strings; the
// server coerces them against the tool schema.
func parseToolCallArgs(args []string, stdin io.Reader, stdinIsTTY bool) (*toolCallArgs, error) {
	parsed := &toolCallArgs{
		toolArgs: make(map[string]any),
	}

	var positionalJSON string
	hasToolFlags := false
	hasAnyFlags := false
	afterSeparator := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" && !afterSeparator {
			afterSeparator = true
			continue
		}

		if !afterSeparator {
			switch {
			case arg == "-q" || arg == "--quiet":
				parsed.quiet = true
				hasAnyFlags = true
				continue
			case arg == "-h" || arg == "--help":
				parsed.help = true
				hasAnyFlags = true
				continue
			}
		}

		if strings.HasPrefix(arg, "--") {
			flagArg := arg
			if strings.HasPrefix(arg, "--tool-") {
				flagArg = "--" + strings.TrimPrefix(arg, "--tool-")
			}
			if positionalJSON != "" {
				return nil, fmt.Errorf("cannot mix positional JSON arguments with --flags")
			}

			key, value, err := parseLongFlagValue(args, &i, flagArg)
			if err != nil {
				return nil, err
			}
			if err := putArgPath(parsed.toolArgs, key, value); err != nil {
				return nil, err
			}
			hasToolFlags = true
			hasAnyFlags = true
			continue
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			return nil, fmt.Errorf("unsupported short flag: %s", arg)
		}

		if hasToolFlags {
			return nil, fmt.Errorf("unexpected positional argument: %s", arg)
		}
		if positionalJSON != "" {
			return nil, fmt.Errorf("multiple positional arguments are not supported")
		}
		positionalJSON = arg
	}

	if positionalJSON == "-" {
		positionalJSON = ""
		stdinIsTTY = false
		hasAnyFlags = false
	}

	if positionalJSON != "" {
		obj, err := parseJSONObject(positionalJSON)
		if err != nil {
			return nil, err
		}
		parsed.toolArgs = obj
		return parsed, nil
	}

	if !hasAnyFlags && !stdinIsTTY && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			obj, err := parseJSONObject(trimmed)
			if err != nil {
				return nil, err
			}
			parsed.toolArgs = obj
		}
	}

	return parsed, nil
}

func parseJSONObject(raw string) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("JSON arguments must be an object")
	}
	return obj, nil
}

func parseLongFlagValue(args []string, idx *int, token string) (string, any, error) {
	body := strings.TrimPrefix(token, "--")
	if body == "" {
		return "", nil, fmt.Errorf("invalid flag: %s", token)
	}

	if eq := strings.Index(body, "="); eq >= 0 {
		key := body[:eq]
		value := body[eq+1:]
		if key == "" {
			return "", nil, fmt.Errorf("invalid flag: %s", token)
		}
		return key, value, nil
	}

	if strings.HasPrefix(body, "no-") && len(body) > 3 {
		if *idx+1 >= len(args) || strings.HasPrefix(args[*idx+1], "--") {
			return strings.TrimPrefix(body, "no-"), false, nil
		}
	}

	if *idx+1 < len(args) && !strings.HasPrefix(args[*idx+1], "--") {
		*idx = *idx + 1
		return body, args[*idx], nil
	}

	return body, true, nil
}

// putArgPath stores value under a dotted key, so --position.x=10 builds
// {"position":{"x":"10"}}. Repeated keys collect into an array.
func putArgPath(dst map[string]any, key string, value any) error {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if part == "" {
			return fmt.Errorf("invalid flag name: --%s", key)
		}
		if i == len(parts)-1 {
			break
		}
		next, ok := dst[part]
		if !ok {
			child := map[string]any{}
			dst[part] = child
			dst = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("--%s conflicts with --%s", key, strings.Join(parts[:i+1], "."))
		}
		dst = child
	}
	putArgValue(dst, parts[len(parts)-1], value)
	return nil
}

func putArgValue(dst map[string]any, key string, value any) {
	if existing, ok := dst[key]; ok {
		switch v := existing.(type) {
		case []any:
			dst[key] = append(v, value)
		default:
			dst[key] = []any{v, value}
		}
		return
	}
	dst[key] = value
}
