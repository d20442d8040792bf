package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"tessera.dev/internal/identity"
	"tessera.dev/internal/obs"
)

// LogEvent writes an append-only audit line enriched with the request id
// and the acting principal from context. Admin mutations and
// authorization denials go through here.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := identity.RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if principal, ok := identity.PrincipalFromContext(ctx); ok {
		entry["actor_id"] = principal.ID()
		entry["actor_username"] = principal.Username()
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
