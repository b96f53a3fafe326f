package resolve

import (
	"fmt"
	"strings"
)

// UnresolvedError reports tokens that survived every resolution pass at a
// boundary that requires a fully concrete document. Partial resolution is
// tolerated mid-pipeline; handing an unresolved token to Terraform or Packer
// is not.
type UnresolvedError struct {
	Tokens []string
}

// Error implements the error interface.
func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("document contains %d unresolved reference(s): %s",
		len(e.Tokens), strings.Join(e.Tokens, ", "))
}
