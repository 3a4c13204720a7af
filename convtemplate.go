package npybuild

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TemplateBanner starts every expanded template.
const TemplateBanner = `/*
 *****************************************************************************
 **       This file was generated from a template.  DO NOT EDIT!            **
 **       Changes should be made to the original source (.src) file.        **
 *****************************************************************************
 */

`

var (
	repeatMarkerRe = regexp.MustCompile(`/\*\*(begin|end) repeat(\d*)(\*\*/)?`)
	repeatDefRe    = regexp.MustCompile(`#\s*(\w+)\s*=\s*([^#]*)#`)
	substRe        = regexp.MustCompile(`@(\w+)@`)
	parenRepRe     = regexp.MustCompile(`^\((.*)\)\*(\d+)$`)
	plainRepRe     = regexp.MustCompile(`^([^*]+)\*(\d+)$`)
	commentLeadRe  = regexp.MustCompile(`\n\s*\*`)
)

// ProcessTemplate expands the repeat blocks of a .src template.
//
// A block has the form
//
//	/**begin repeat
//	 * #name = a, b, c#
//	 * #type = int*2, long#
//	 */
//	... @name@ ... @type@ ...
//	/**end repeat**/
//
// The body is emitted once per value, with @name@ replaced. Blocks nest by
// adding a level number (begin repeat1 / end repeat1). All definitions of a
// block must have the same length. Text outside blocks is copied verbatim.
//
// The result only depends on content, so expanding the same template twice
// yields identical output.
func ProcessTemplate(content string) (string, error) {
	expanded, err := expandRepeats(content, nil, false)
	if err != nil {
		return "", err
	}
	return TemplateBanner + expanded, nil
}

type repeatBlock struct {
	level     string
	start     int // start of the begin marker
	header    string
	bodyStart int
	bodyEnd   int
	end       int // end of the end marker
}

func expandRepeats(text string, env map[string]string, inLoop bool) (string, error) {
	var out strings.Builder
	pos := 0

	for {
		block, found, err := nextRepeatBlock(text, pos)
		if err != nil {
			return "", err
		}
		if !found {
			seg, err := substitute(text[pos:], env, inLoop)
			if err != nil {
				return "", err
			}
			out.WriteString(seg)
			return out.String(), nil
		}

		seg, err := substitute(text[pos:block.start], env, inLoop)
		if err != nil {
			return "", err
		}
		out.WriteString(seg)

		header := block.header
		if inLoop {
			if header, err = substitute(header, env, true); err != nil {
				return "", err
			}
		}

		names, values, count, err := parseRepeatHeader(header)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", lineOf(text, block.start), err)
		}

		body := text[block.bodyStart:block.bodyEnd]
		for i := 0; i < count; i++ {
			loopEnv := make(map[string]string, len(env)+len(names))
			for k, v := range env {
				loopEnv[k] = v
			}
			for _, name := range names {
				loopEnv[name] = values[name][i]
			}

			expanded, err := expandRepeats(body, loopEnv, true)
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)
		}

		pos = block.end
	}
}

// nextRepeatBlock finds the first top-level block at or after pos.
func nextRepeatBlock(text string, pos int) (repeatBlock, bool, error) {
	markers := repeatMarkerRe.FindAllStringSubmatchIndex(text[pos:], -1)
	if len(markers) == 0 {
		return repeatBlock{}, false, nil
	}

	m := markers[0]
	kind := text[pos+m[2] : pos+m[3]]
	level := text[pos+m[4] : pos+m[5]]
	if kind == "end" {
		return repeatBlock{}, false, fmt.Errorf("line %d: end repeat%s without begin", lineOf(text, pos+m[0]), level)
	}

	block := repeatBlock{level: level, start: pos + m[0]}

	headerStart := pos + m[1]
	closeIdx := strings.Index(text[headerStart:], "*/")
	if closeIdx < 0 {
		return repeatBlock{}, false, fmt.Errorf("line %d: unterminated begin repeat%s header", lineOf(text, block.start), level)
	}
	block.header = text[headerStart : headerStart+closeIdx]
	block.bodyStart = headerStart + closeIdx + 2

	depth := 1
	for _, mk := range markers[1:] {
		at := pos + mk[0]
		if at < block.bodyStart {
			continue
		}
		switch text[pos+mk[2] : pos+mk[3]] {
		case "begin":
			depth++
		case "end":
			depth--
		}
		if depth == 0 {
			endLevel := text[pos+mk[4] : pos+mk[5]]
			if endLevel != level {
				return repeatBlock{}, false, fmt.Errorf("line %d: begin repeat%s closed by end repeat%s",
					lineOf(text, block.start), level, endLevel)
			}
			block.bodyEnd = at
			block.end = pos + mk[1]
			return block, true, nil
		}
	}

	return repeatBlock{}, false, fmt.Errorf("line %d: begin repeat%s without end", lineOf(text, block.start), level)
}

// parseRepeatHeader returns the defined names in header order, their value
// lists and the common length.
func parseRepeatHeader(header string) ([]string, map[string][]string, int, error) {
	defs := repeatDefRe.FindAllStringSubmatch(header, -1)
	if len(defs) == 0 {
		return nil, nil, 0, fmt.Errorf("repeat block defines no variables")
	}

	var names []string
	values := make(map[string][]string)
	count := -1

	for _, def := range defs {
		name := def[1]
		if _, dup := values[name]; dup {
			return nil, nil, 0, fmt.Errorf("variable %q defined twice", name)
		}

		raw := commentLeadRe.ReplaceAllString(def[2], " ")
		list, err := parseRepeatValues(raw)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("variable %q: %w", name, err)
		}
		if len(list) == 0 {
			return nil, nil, 0, fmt.Errorf("variable %q has no values", name)
		}
		if count >= 0 && len(list) != count {
			return nil, nil, 0, fmt.Errorf("mismatch in number of replacements: %q has %d, expected %d",
				name, len(list), count)
		}
		count = len(list)

		names = append(names, name)
		values[name] = list
	}

	return names, values, count, nil
}

// parseRepeatValues parses "a, b*2, (c, d)*2" into [a b b c d c d].
func parseRepeatValues(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var items []string
	for _, item := range splitTopLevel(s) {
		item = strings.TrimSpace(item)

		if m := parenRepRe.FindStringSubmatch(item); m != nil {
			inner, err := parseRepeatValues(m[1])
			if err != nil {
				return nil, err
			}
			n, _ := strconv.Atoi(m[2])
			for i := 0; i < n; i++ {
				items = append(items, inner...)
			}
			continue
		}

		if strings.HasPrefix(item, "(") && strings.HasSuffix(item, ")") {
			inner, err := parseRepeatValues(item[1 : len(item)-1])
			if err != nil {
				return nil, err
			}
			items = append(items, inner...)
			continue
		}

		if m := plainRepRe.FindStringSubmatch(item); m != nil {
			n, _ := strconv.Atoi(m[2])
			for i := 0; i < n; i++ {
				items = append(items, strings.TrimSpace(m[1]))
			}
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func substitute(text string, env map[string]string, inLoop bool) (string, error) {
	if !inLoop {
		return text, nil
	}

	var missing string
	result := substRe.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := env[name]; ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return match
	})
	if missing != "" {
		return "", fmt.Errorf("no substitution made for @%s@", missing)
	}
	return result, nil
}

func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
