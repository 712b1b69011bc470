package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// ParsePathID reads a positive integer id from the chi URL param name.
func ParsePathID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return 0, pathError(name, "is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pathError(name, "must be a positive integer")
	}
	return id, nil
}

func pathError(name, problem string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid path parameter").
		WithDetails(map[string]string{name: problem})
}
