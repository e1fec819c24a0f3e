package transfer

import (
	"strings"

	"github.com/google/uuid"
)

// ReferencePrefix starts every transfer reference.
const ReferencePrefix = "INV-"

// NewReference returns a reference such as "INV-9F2C41A07B". Uniqueness is
// best effort.
func NewReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ReferencePrefix + strings.ToUpper(raw[:10])
}
