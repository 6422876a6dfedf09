package messaging

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/internal/repositories/message"
)

// Cursors are opaque to clients: base64 over "createdAt|id" using
// RFC3339Nano so sub-second ordering survives the round trip.

func encodeCursor(c *message.Cursor) string {
	raw := fmt.Sprintf("%s|%s", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*message.Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}

	return &message.Cursor{CreatedAt: createdAt, ID: parts[1]}, nil
}
