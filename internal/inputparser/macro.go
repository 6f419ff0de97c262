package inputparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StickTilt is a parsed L_STICK@/R_STICK@ token, in ratio form (-1..1 on
// each axis).
type StickTilt struct {
	X, Y float64
}

// HoldFrame is one expanded macro line: the buttons and (optional) stick
// tilts held for Duration. Loop expansion happens once at parse time, so
// the runtime only ever walks a flat slice of these with a cursor and a
// deadline.
type HoldFrame struct {
	Buttons    map[Button]bool
	LeftStick  *StickTilt
	RightStick *StickTilt
	Duration   time.Duration
}

// ParseMacro parses macro text into a flat, loop-expanded sequence of hold
// frames.
func ParseMacro(text string) ([]HoldFrame, error) {
	lines := strings.Split(text, "\n")
	expanded, err := expandLines(lines)
	if err != nil {
		return nil, err
	}

	frames := make([]HoldFrame, 0, len(expanded))
	for _, line := range expanded {
		frame, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// significant reports whether a raw (un-trimmed) line carries content: not
// empty/whitespace-only, and not a comment (leading '#' after trimming).
func significant(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && !strings.HasPrefix(trimmed, "#")
}

// detectIndentPrefix picks the loop-body indent prefix from the first
// significant line in lines, preferring tab, then four spaces, then two
// spaces. Returns "" if that line carries none of those prefixes, meaning
// the LOOP body isn't indented at all.
func detectIndentPrefix(lines []string) string {
	for _, l := range lines {
		if !significant(l) {
			continue
		}
		switch {
		case strings.HasPrefix(l, "\t"):
			return "\t"
		case strings.HasPrefix(l, "    "):
			return "    "
		case strings.HasPrefix(l, "  "):
			return "  "
		default:
			return ""
		}
	}
	return ""
}

// expandLines recursively expands LOOP blocks (nested loops expand
// innermost-first via the recursive call) into a flat slice of trimmed,
// non-empty, non-comment command lines. A LOOP whose body isn't indented is
// a parse error rather than a silently-empty expansion: un-indented text
// following it would otherwise be swallowed into the loop and simply
// dropped, with nothing to signal the mistake.
func expandLines(lines []string) ([]string, error) {
	var out []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !significant(line) {
			i++
			continue
		}
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "LOOP ") || trimmed == "LOOP" {
			fields := strings.Fields(trimmed)
			count := 0
			if len(fields) >= 2 {
				count, _ = strconv.Atoi(fields[1])
			}

			prefix := detectIndentPrefix(lines[i+1:])
			if prefix == "" {
				return nil, fmt.Errorf("inputparser: LOOP body must be indented: %q", trimmed)
			}
			var body []string
			j := i + 1
			for j < len(lines) {
				if !significant(lines[j]) {
					j++
					continue
				}
				if strings.HasPrefix(lines[j], prefix) {
					body = append(body, strings.TrimPrefix(lines[j], prefix))
					j++
					continue
				}
				break
			}

			expandedBody, err := expandLines(body)
			if err != nil {
				return nil, err
			}
			for n := 0; n < count; n++ {
				out = append(out, expandedBody...)
			}
			i = j
			continue
		}

		out = append(out, trimmed)
		i++
	}
	return out, nil
}

// parseStickToken parses an "L_STICK@+100+000"-style token.
func parseStickToken(tok string) (isLeft bool, tilt StickTilt, err error) {
	var rest string
	switch {
	case strings.HasPrefix(tok, "L_STICK@"):
		isLeft = true
		rest = strings.TrimPrefix(tok, "L_STICK@")
	case strings.HasPrefix(tok, "R_STICK@"):
		isLeft = false
		rest = strings.TrimPrefix(tok, "R_STICK@")
	default:
		return false, StickTilt{}, fmt.Errorf("inputparser: not a stick token: %q", tok)
	}

	if len(rest) != 8 {
		return false, StickTilt{}, fmt.Errorf("inputparser: malformed stick token: %q", tok)
	}

	x, err := parseSignedMagnitude(rest[0:4])
	if err != nil {
		return false, StickTilt{}, err
	}
	y, err := parseSignedMagnitude(rest[4:8])
	if err != nil {
		return false, StickTilt{}, err
	}
	return isLeft, StickTilt{X: x, Y: y}, nil
}

func parseSignedMagnitude(s string) (float64, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("inputparser: malformed stick magnitude: %q", s)
	}
	sign := 1.0
	if s[0] == '-' {
		sign = -1.0
	} else if s[0] != '+' {
		return 0, fmt.Errorf("inputparser: stick magnitude missing sign: %q", s)
	}
	mag, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("inputparser: bad stick magnitude %q: %w", s, err)
	}
	return sign * float64(mag) / 100.0, nil
}

// parseLine parses a single expanded command line (a hold line or a
// standalone wait line) into a HoldFrame.
func parseLine(line string) (HoldFrame, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return HoldFrame{}, fmt.Errorf("inputparser: empty command line")
	}

	last := tokens[len(tokens)-1]
	if !strings.HasSuffix(last, "s") {
		return HoldFrame{}, fmt.Errorf("inputparser: line missing duration suffix: %q", line)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSuffix(last, "s"), 64)
	if err != nil {
		return HoldFrame{}, fmt.Errorf("inputparser: bad duration in %q: %w", line, err)
	}

	frame := HoldFrame{
		Buttons:  make(map[Button]bool),
		Duration: time.Duration(seconds * float64(time.Second)),
	}

	for _, tok := range tokens[:len(tokens)-1] {
		if strings.Contains(tok, "_STICK@") {
			isLeft, tilt, err := parseStickToken(tok)
			if err != nil {
				return HoldFrame{}, err
			}
			if isLeft {
				frame.LeftStick = &tilt
			} else {
				frame.RightStick = &tilt
			}
			continue
		}
		frame.Buttons[Button(tok)] = true
	}

	return frame, nil
}
