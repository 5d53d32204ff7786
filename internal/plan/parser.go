package plan

import (
	"bufio"
	"strconv"
	"strings"

	"hearth/internal/herrors"
	"hearth/internal/jsonval"
)

// rawBlock is one parsed STEP block before validation.
type rawBlock struct {
	sequence   int
	faculty    string
	action     string
	parameters string
	capsRaw    string
	notes      []string
	hasFaculty bool
	hasAction  bool
	hasParams  bool
	hasCaps    bool
}

var stepHeaderPrefix = "STEP "

// parseBlocks splits llm_output into STEP blocks per the loose grammar: a
// "STEP <n>:" header followed by FACULTY/ACTION/PARAMETERS/CAPABILITIES
// lines in any order. Unrecognized lines within a block become notes.
func parseBlocks(llmOutput string) ([]rawBlock, error) {
	var blocks []rawBlock
	var current *rawBlock

	scanner := bufio.NewScanner(strings.NewReader(llmOutput))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, stepHeaderPrefix) {
			header := strings.TrimSuffix(strings.TrimPrefix(trimmed, stepHeaderPrefix), ":")
			n, err := strconv.Atoi(strings.TrimSpace(header))
			if err != nil {
				return nil, &herrors.ParseError{Step: len(blocks) + 1, Field: "header", Message: "STEP header must be of the form \"STEP <n>:\""}
			}
			if current != nil {
				blocks = append(blocks, *current)
			}
			current = &rawBlock{sequence: n}
			continue
		}

		if current == nil {
			return nil, &herrors.ParseError{Step: 0, Field: "header", Message: "content found before any STEP header"}
		}

		switch {
		case consumeField(trimmed, "FACULTY:", &current.faculty):
			current.hasFaculty = true
		case consumeField(trimmed, "ACTION:", &current.action):
			current.hasAction = true
		case consumeField(trimmed, "PARAMETERS:", &current.parameters):
			current.hasParams = true
		case consumeField(trimmed, "CAPABILITIES:", &current.capsRaw):
			current.hasCaps = true
		default:
			current.notes = append(current.notes, trimmed)
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks, nil
}

// consumeField checks whether line begins with prefix and, if so, stores
// the trimmed remainder into dest and reports true.
func consumeField(line, prefix string, dest *string) bool {
	if !strings.HasPrefix(line, prefix) {
		return false
	}
	*dest = strings.TrimSpace(strings.TrimPrefix(line, prefix))
	return true
}

// validateAndBuildStep validates a rawBlock per §4.2 and constructs the
// corresponding PlanStep, or returns a typed error naming the step and field.
func validateAndBuildStep(b rawBlock) (PlanStep, error) {
	if !b.hasFaculty || b.faculty == "" {
		return PlanStep{}, &herrors.ValidationError{Path: "FACULTY", Rule: "required", Message: "step " + strconv.Itoa(b.sequence) + " is missing FACULTY"}
	}
	faculty := Faculty(strings.ToUpper(b.faculty))
	if !knownFaculties[faculty] {
		return PlanStep{}, &herrors.ValidationError{Path: "FACULTY", Rule: "known_faculty", Message: "step " + strconv.Itoa(b.sequence) + " names unknown faculty " + b.faculty}
	}

	if !b.hasAction || strings.TrimSpace(b.action) == "" {
		return PlanStep{}, &herrors.ValidationError{Path: "ACTION", Rule: "required", Message: "step " + strconv.Itoa(b.sequence) + " is missing ACTION"}
	}
	if len(b.action) > maxActionLength {
		return PlanStep{}, &herrors.ValidationError{Path: "ACTION", Rule: "max_length:280", Message: "step " + strconv.Itoa(b.sequence) + " ACTION exceeds 280 characters"}
	}
	if tok, ok := findForbiddenToken(b.action); ok {
		return PlanStep{}, &herrors.ValidationError{Path: "ACTION", Rule: "forbidden_token:" + tok, Message: "step " + strconv.Itoa(b.sequence) + " ACTION contains forbidden conditional token " + tok}
	}

	var params jsonval.Value
	if b.hasParams && strings.TrimSpace(b.parameters) != "" {
		p, err := jsonval.ParseObject(b.parameters)
		if err != nil {
			return PlanStep{}, &herrors.ValidationError{Path: "PARAMETERS", Rule: "json_object", Message: "step " + strconv.Itoa(b.sequence) + " PARAMETERS must be a well-formed JSON object: " + err.Error()}
		}
		params = p
	} else {
		return PlanStep{}, &herrors.ValidationError{Path: "PARAMETERS", Rule: "required", Message: "step " + strconv.Itoa(b.sequence) + " is missing PARAMETERS"}
	}

	if !b.hasCaps || strings.TrimSpace(b.capsRaw) == "" {
		return PlanStep{}, &herrors.ValidationError{Path: "CAPABILITIES", Rule: "required", Message: "step " + strconv.Itoa(b.sequence) + " is missing CAPABILITIES"}
	}
	caps := splitCapabilities(b.capsRaw)
	if len(caps) == 0 {
		return PlanStep{}, &herrors.ValidationError{Path: "CAPABILITIES", Rule: "required", Message: "step " + strconv.Itoa(b.sequence) + " CAPABILITIES must not be empty"}
	}

	return PlanStep{
		Sequence:             b.sequence,
		Faculty:              faculty,
		Action:                b.action,
		Parameters:           params,
		RequiredCapabilities: caps,
		EstimatedDurationSec: 0,
		Notes:                b.notes,
	}, nil
}

func splitCapabilities(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// findForbiddenToken reports the first forbidden conditional token found in
// action, matched case-insensitively at word boundaries.
func findForbiddenToken(action string) (string, bool) {
	for _, tok := range forbiddenConditionalTokens {
		if forbiddenTokenPatterns[tok].MatchString(action) {
			return tok, true
		}
	}
	return "", false
}
