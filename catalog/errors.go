package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-books-catalog/loader"
)

// ErrStructure marks a source whose shape makes it unusable: no rows or a
// missing required column.
var ErrStructure = errors.New("source structure invalid")

// StructureError carries the validator's structural findings.
type StructureError struct {
	Problems []string
}

func (e StructureError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStructure, strings.Join(e.Problems, "; "))
}

func (e StructureError) Unwrap() error {
	return ErrStructure
}

// failureReason maps a refresh error to a metric label.
func failureReason(err error) string {
	if errors.Is(err, ErrStructure) {
		return "structure"
	}
	return loader.ErrorLabel(err)
}
