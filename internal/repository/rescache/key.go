package rescache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
)

// Key derives the cache key for one query identity: normalized text,
// canonical filters, result window, caller scope fingerprint and the
// requested as-of instant. Queries without an explicit as-of share the
// "now" slot; hash revalidation at read keeps such entries honest.
// Two callers with the same tenant and role set share entries; any
// difference in scope isolates them.
func Key(q *query.Query, p principal.Principal) string {
	h := sha256.New()
	fmt.Fprintf(h, "q=%s\n", q.Normalized())
	fmt.Fprintf(h, "f=%s\n", q.Filters().Canonical())
	fmt.Fprintf(h, "w=%d:%d:%d\n", q.Page().Offset, q.Page().Size, q.TopK())
	fmt.Fprintf(h, "s=%s\n", p.Fingerprint())
	if at := q.AsOf(); at != nil {
		fmt.Fprintf(h, "t=%d\n", at.UnixMilli())
	} else {
		fmt.Fprintf(h, "t=now\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
