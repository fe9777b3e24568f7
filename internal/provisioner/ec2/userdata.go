package ec2

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"replicator/internal/job"
)

// workerScript boots the replication worker on first start. The job spec is
// written to disk and handed to the worker entrypoint baked into the AMI;
// the worker reports progress and the terminal status back to the job table
// under its instance role.
const workerScript = `#!/bin/bash
set -euo pipefail

cat > /tmp/job_spec.json <<'EOF'
%s
EOF

/opt/replicator/worker.sh %q /tmp/job_spec.json
`

// buildUserData renders the base64-encoded launch script for a job.
func buildUserData(rec *job.Record) (string, error) {
	spec, err := json.Marshal(&job.Spec{
		Command:   rec.Command,
		SourceURL: rec.SourceURL,
		TargetURL: rec.TargetURL,
		Filter:    rec.Filter,
		Options:   rec.Options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job spec: %w", err)
	}

	script := fmt.Sprintf(workerScript, spec, rec.ID)
	return base64.StdEncoding.EncodeToString([]byte(script)), nil
}
