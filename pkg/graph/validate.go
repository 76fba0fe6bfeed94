package graph

import (
	"fmt"
	"regexp"
)

// ValidationSeverity indicates whether a validation finding blocks code
// generation or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks generation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Block    string             // which block has the problem (empty if scene-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] block %q: %s", e.Severity, e.Block, e.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether no blocking error was found.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate runs every structural check on the scene and returns the
// findings. An empty slice means the scene is valid. Validate never
// mutates the scene.
func Validate(s *Scene) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(s)...)
	errs = append(errs, validateReferences(s)...)
	errs = append(errs, validateNames(s)...)
	errs = append(errs, validateFolds(s)...)
	errs = append(errs, validatePlaceholders(s)...)
	errs = append(errs, validateRoot(s)...)
	return errs
}

// ValidateAll runs Validate and separates errors from warnings.
func ValidateAll(s *Scene) ValidationResult {
	var result ValidationResult
	for _, e := range Validate(s) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, e)
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	return result
}

// validateDAG reports the first dependency cycle found from any block.
func validateDAG(s *Scene) []ValidationError {
	for _, name := range s.order {
		if err := s.FindCycle(name); err != nil {
			return []ValidationError{{
				Block:    name,
				Message:  err.Error(),
				Severity: SeverityError,
			}}
		}
	}
	return nil
}

// validateReferences checks that every edge still joins an existing input
// to an existing output.
func validateReferences(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, c := range s.Connections() {
		if _, _, _, _, err := s.resolve(c.In, c.Out); err != nil {
			errs = append(errs, ValidationError{
				Block:    c.In.Block,
				Message:  fmt.Sprintf("connection %s <- %s is dangling: %v", c.In, c.Out, err),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateNames checks that generated identifiers are valid and that no
// two blocks map to the same identifier prefix.
func validateNames(s *Scene) []ValidationError {
	var errs []ValidationError
	owners := make(map[string]string)
	for _, b := range s.Blocks() {
		sl := b.SLName()
		if !identifierRE.MatchString(sl) {
			errs = append(errs, ValidationError{
				Block:    b.Name,
				Message:  fmt.Sprintf("name %q does not form a valid identifier", sl),
				Severity: SeverityError,
			})
		}
		if other, ok := owners[sl]; ok {
			errs = append(errs, ValidationError{
				Block:    b.Name,
				Message:  fmt.Sprintf("identifier %q collides with block %q", sl, other),
				Severity: SeverityError,
			})
			continue
		}
		owners[sl] = b.Name
	}
	return errs
}

// validateFolds checks that every fold clone still has its head input.
func validateFolds(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, b := range s.Blocks() {
		for _, p := range b.Inputs {
			if p.MultiParent == "" {
				continue
			}
			head := b.Input(p.MultiParent)
			if head == nil || head.Kind() != InputFold {
				errs = append(errs, ValidationError{
					Block:    b.Name,
					Message:  fmt.Sprintf("input %q clones missing fold input %q", p.Name, p.MultiParent),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validatePlaceholders warns about tokens that name no property of their
// block. The generator refuses such code.
func validatePlaceholders(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, b := range s.Blocks() {
		for _, p := range Placeholders(b.Code) {
			if p.Name == BlockNameToken && p.Qualifier == "" {
				continue
			}
			if b.Property(p.Name) != nil && (p.Qualifier == "" || p.Qualifier == "type") {
				continue
			}
			errs = append(errs, ValidationError{
				Block:    b.Name,
				Message:  fmt.Sprintf("placeholder %s names no property", p.Token()),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateRoot warns about blocks that cannot contribute to any shader.
func validateRoot(s *Scene) []ValidationError {
	reachable := make(map[string]bool)
	s.UpwardBlocks(s.root, reachable)

	var errs []ValidationError
	for _, name := range s.order {
		if !reachable[name] {
			errs = append(errs, ValidationError{
				Block:    name,
				Message:  "block is not reachable from the root (orphan)",
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}
