package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/TenantForge/internal/domain/event"
	"github.com/Strob0t/TenantForge/internal/domain/job"
)

// DecodeJob parses and validates a job envelope received on subject.
func DecodeJob(subject string, data []byte) (job.Envelope, error) {
	var env job.Envelope
	if !json.Valid(data) {
		return env, fmt.Errorf("invalid JSON on subject %s", subject)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode job on %s: %w", subject, err)
	}
	if !strings.HasSuffix(subject, "."+string(env.Kind)) {
		return env, fmt.Errorf("job kind %q does not match subject %s", env.Kind, subject)
	}
	if err := env.Validate(); err != nil {
		return env, fmt.Errorf("invalid job on %s: %w", subject, err)
	}
	return env, nil
}

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	switch {
	case strings.HasPrefix(subject, SubjectJobsPrefix+"."):
		_, err := DecodeJob(subject, data)
		return err
	case subject == event.SubjectTenantActivated:
		var ev event.TenantActivated
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if ev.TenantID == "" {
			return fmt.Errorf("schema validation failed for %s: tenant_id is required", subject)
		}
		return nil
	default:
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON on subject %s", subject)
		}
		return nil
	}
}
